package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// sectionMarker starts the dashed lines that fence the transaction table in
// both platforms' exports.
const sectionMarker = "------"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decode returns the export as UTF-8. Exports are either UTF-8 (optionally
// with a BOM) or GB18030, a superset of GBK.
func decode(data []byte) ([]byte, error) {
	if utf8.Valid(data) {
		return bytes.TrimPrefix(data, utf8BOM), nil
	}
	out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decode: GB18030: %w", err)
	}
	return out, nil
}

// readSection returns the trimmed data rows between the first and second
// dashed line, dropping the column-title row whose first cell is header.
func readSection(data []byte, header string) ([][]string, error) {
	text, err := decode(data)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	inside := false
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("readSection: %w", err)
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if len(rec) == 0 {
			continue
		}

		if strings.HasPrefix(rec[0], sectionMarker) {
			if inside {
				break
			}
			inside = true
			continue
		}
		if !inside || rec[0] == header || isBlank(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if c != "" {
			return false
		}
	}
	return true
}
