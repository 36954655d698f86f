package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/bill-classifier/internal/domain"
	"github.com/dvloznov/bill-classifier/internal/logger"
	"github.com/dvloznov/bill-classifier/internal/partition"
	"github.com/jomei/notionapi"
)

// Notion database property names.
const (
	propBillKey      = "Bill Key"
	propDescription  = "Description"
	propCounterparty = "Counterparty"
	propAmount       = "Amount"
	propCategory     = "Category"
	propMethod       = "Method"
	propKind         = "Kind"
	propSource       = "Source"
	propOwner        = "Owner"
	propDate         = "Date"
)

// NotionSink mirrors classified bills into a Notion database. Pages are
// keyed by BillKey: a bill already mirrored is updated only when its
// category or method changed.
type NotionSink struct {
	svc        NotionService
	databaseID string
	location   *time.Location
	dryRun     bool
}

// NewNotionSink creates a mirror sink for databaseID.
func NewNotionSink(svc NotionService, databaseID string, loc *time.Location, dryRun bool) *NotionSink {
	if loc == nil {
		loc = time.Local
	}
	return &NotionSink{svc: svc, databaseID: databaseID, location: loc, dryRun: dryRun}
}

// Name implements Sink.
func (s *NotionSink) Name() string { return "notion" }

type mirroredPage struct {
	id       string
	category string
	method   string
}

// Write implements Sink. Failures on single pages are logged and skipped.
func (s *NotionSink) Write(ctx context.Context, res *partition.Result) error {
	log := logger.FromContext(ctx)

	bills := res.ExpenseRows()
	log.Info().
		Int("bills", len(bills)).
		Bool("dry_run", s.dryRun).
		Msg("Starting Notion mirror")

	pages, err := queryAllNotionPages(ctx, s.svc, s.databaseID)
	if err != nil {
		return fmt.Errorf("NotionSink.Write: %w", err)
	}

	existing := make(map[string]mirroredPage, len(pages))
	for _, p := range pages {
		key := titleText(p.Properties[propBillKey])
		if key == "" {
			continue
		}
		existing[key] = mirroredPage{
			id:       string(p.ID),
			category: selectName(p.Properties[propCategory]),
			method:   selectName(p.Properties[propMethod]),
		}
	}
	log.Info().Int("notion_page_count", len(existing)).Msg("Retrieved existing Notion pages")

	var created, updated, skipped, failed int
	for _, b := range bills {
		key := BillKey(b)
		page, found := existing[key]

		if found && page.category == b.Category.String() && page.method == b.Method.String() {
			skipped++
			continue
		}

		if s.dryRun {
			if found {
				log.Info().Str("bill_key", key).Str("page_id", page.id).Msg("[DRY RUN] Would update Notion page")
				updated++
			} else {
				log.Info().Str("bill_key", key).Msg("[DRY RUN] Would create Notion page")
				created++
			}
			continue
		}

		if found {
			props := notionapi.Properties{
				propCategory: selectProperty(b.Category.String()),
				propMethod:   selectProperty(b.Method.String()),
			}
			if _, err := s.svc.UpdatePage(ctx, page.id, props); err != nil {
				log.Warn().Err(err).Str("bill_key", key).Str("page_id", page.id).Msg("Failed to update Notion page")
				failed++
				continue
			}
			updated++
			continue
		}

		if _, err := s.svc.CreatePage(ctx, s.databaseID, BillProperties(b, s.location)); err != nil {
			log.Warn().Err(err).Str("bill_key", key).Msg("Failed to create Notion page")
			failed++
			continue
		}
		created++
	}

	log.Info().
		Int("created", created).
		Int("updated", updated).
		Int("skipped", skipped).
		Int("failed", failed).
		Int("total", len(bills)).
		Msg("Notion mirror completed")
	return nil
}

// BillProperties maps a bill to Notion page properties.
func BillProperties(b *domain.Bill, loc *time.Location) notionapi.Properties {
	date := notionapi.Date(b.OccurredAt.In(loc))
	return notionapi.Properties{
		propBillKey: notionapi.TitleProperty{
			Title: []notionapi.RichText{{
				Type: notionapi.ObjectTypeText,
				Text: &notionapi.Text{Content: BillKey(b)},
			}},
		},
		propDescription:  richTextProperty(b.Description),
		propCounterparty: richTextProperty(b.Counterparty),
		propAmount:       notionapi.NumberProperty{Number: b.Amount.InexactFloat64()},
		propCategory:     selectProperty(b.Category.String()),
		propMethod:       selectProperty(b.Method.String()),
		propKind:         selectProperty(b.Kind.String()),
		propSource:       selectProperty(string(b.Source)),
		propOwner:        selectProperty(b.Owner),
		propDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
	}
}

func richTextProperty(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		}},
	}
}

func selectProperty(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{Select: notionapi.Option{Name: name}}
}

// titleText reads a title property as decoded from a query response.
func titleText(p notionapi.Property) string {
	if t, ok := p.(*notionapi.TitleProperty); ok && len(t.Title) > 0 {
		return t.Title[0].PlainText
	}
	return ""
}

func selectName(p notionapi.Property) string {
	if s, ok := p.(*notionapi.SelectProperty); ok {
		return s.Select.Name
	}
	return ""
}
