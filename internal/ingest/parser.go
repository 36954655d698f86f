// Package ingest turns payment-platform CSV exports into bills.
package ingest

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnsupportedSource is returned for a platform without a parser.
	ErrUnsupportedSource = errors.New("unsupported bill source")
	// ErrMalformedRow is returned when a data row cannot be parsed.
	ErrMalformedRow = errors.New("malformed bill row")
)

// Parser converts one export file into bills owned by owner.
type Parser interface {
	Parse(data []byte, owner string) ([]*domain.Bill, error)
}

// ParserFor returns the parser for a platform. Times in the export are
// interpreted in loc.
func ParserFor(src domain.Source, loc *time.Location) (Parser, error) {
	if loc == nil {
		loc = time.Local
	}
	switch src {
	case domain.SourceAlipay:
		return &AlipayParser{Location: loc}, nil
	case domain.SourceWeChat:
		return &WeChatParser{Location: loc}, nil
	}
	return nil, fmt.Errorf("ParserFor: %q: %w", src, ErrUnsupportedSource)
}

// AlipayParser reads Alipay transaction exports.
type AlipayParser struct {
	Location *time.Location
}

// Alipay column positions.
const (
	alipayOrderID      = 1
	alipayTime         = 3
	alipayCounterparty = 7
	alipayDescription  = 8
	alipayAmount       = 9
	alipayKind         = 10
	alipayColumns      = 11
)

func (p *AlipayParser) Parse(data []byte, owner string) ([]*domain.Bill, error) {
	rows, err := readSection(data, "交易号")
	if err != nil {
		return nil, fmt.Errorf("AlipayParser.Parse: %w", err)
	}

	bills := make([]*domain.Bill, 0, len(rows))
	for i, row := range rows {
		if len(row) < alipayColumns {
			return nil, fmt.Errorf("AlipayParser.Parse: row %d has %d columns: %w", i+1, len(row), ErrMalformedRow)
		}
		amount, err := parseAmount(row[alipayAmount])
		if err != nil {
			return nil, fmt.Errorf("AlipayParser.Parse: row %d: %w", i+1, err)
		}
		at, err := time.ParseInLocation(domain.TimeLayout, row[alipayTime], p.Location)
		if err != nil {
			return nil, fmt.Errorf("AlipayParser.Parse: row %d time %q: %w", i+1, row[alipayTime], ErrMalformedRow)
		}

		bills = append(bills, &domain.Bill{
			Amount:       amount,
			Counterparty: row[alipayCounterparty],
			Description:  row[alipayDescription],
			Kind:         domain.ParseKind(row[alipayKind]),
			OrderID:      row[alipayOrderID],
			OccurredAt:   at,
			Source:       domain.SourceAlipay,
			Owner:        owner,
		})
	}
	return bills, nil
}

// WeChatParser reads WeChat Pay transaction exports.
type WeChatParser struct {
	Location *time.Location
}

// WeChat column positions.
const (
	wechatTime         = 0
	wechatCounterparty = 2
	wechatDescription  = 3
	wechatKind         = 4
	wechatAmount       = 5
	wechatStatus       = 7
	wechatOrderID      = 8
	wechatColumns      = 9
)

// wechatShortTimeLayout is used by exports that were re-saved by a
// spreadsheet program.
const wechatShortTimeLayout = "2006/1/2 15:04"

// refundedPattern extracts the refunded part from a status such as
// "已退款(￥12.50)".
var refundedPattern = regexp.MustCompile(`[¥￥](\d+(?:\.\d+)?)`)

func (p *WeChatParser) Parse(data []byte, owner string) ([]*domain.Bill, error) {
	rows, err := readSection(data, "交易时间")
	if err != nil {
		return nil, fmt.Errorf("WeChatParser.Parse: %w", err)
	}

	bills := make([]*domain.Bill, 0, len(rows))
	for i, row := range rows {
		if len(row) < wechatColumns {
			return nil, fmt.Errorf("WeChatParser.Parse: row %d has %d columns: %w", i+1, len(row), ErrMalformedRow)
		}
		amount, err := parseAmount(row[wechatAmount])
		if err != nil {
			return nil, fmt.Errorf("WeChatParser.Parse: row %d: %w", i+1, err)
		}
		if status := row[wechatStatus]; strings.HasPrefix(status, "已退款") {
			if m := refundedPattern.FindStringSubmatch(status); m != nil {
				refunded, err := decimal.NewFromString(m[1])
				if err == nil {
					amount = amount.Sub(refunded)
				}
			}
		}

		layout := wechatShortTimeLayout
		if len(row[wechatTime]) == len(domain.TimeLayout) {
			layout = domain.TimeLayout
		}
		at, err := time.ParseInLocation(layout, row[wechatTime], p.Location)
		if err != nil {
			return nil, fmt.Errorf("WeChatParser.Parse: row %d time %q: %w", i+1, row[wechatTime], ErrMalformedRow)
		}

		bills = append(bills, &domain.Bill{
			Amount:       amount,
			Counterparty: row[wechatCounterparty],
			Description:  row[wechatDescription],
			Kind:         domain.ParseKind(row[wechatKind]),
			OrderID:      row[wechatOrderID],
			OccurredAt:   at,
			Source:       domain.SourceWeChat,
			Owner:        owner,
		})
	}
	return bills, nil
}

// parseAmount accepts plain decimals optionally prefixed with a yen sign
// and with thousands separators.
func parseAmount(s string) (decimal.Decimal, error) {
	clean := strings.TrimSpace(s)
	clean = strings.TrimLeft(clean, "¥￥")
	clean = strings.ReplaceAll(clean, ",", "")
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q: %w", s, ErrMalformedRow)
	}
	return d, nil
}
