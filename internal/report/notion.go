package report

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadval-cli/pkg/notion"
)

// notionTextLimit is Notion's per-rich-text content cap.
const notionTextLimit = 2000

// PublishDaily writes the daily report to the reports database. Re-running a
// day updates its existing page in place; otherwise a new page is created.
// The narrative is optional and stored as a rich-text property when present.
func PublishDaily(ctx context.Context, client notion.Client, dbID string, rep *DailyReport, narrative string) (string, error) {
	if dbID == "" {
		return "", eris.New("report: notion report database not configured")
	}

	props := dailyPageProperties(rep, narrative)

	existing, err := notion.FindByDate(ctx, client, dbID, "Date", rep.Date)
	if err != nil {
		return "", eris.Wrap(err, "report: look up notion page")
	}
	if existing != nil {
		page, err := client.UpdatePage(ctx, string(existing.ID), &notionapi.PageUpdateRequest{
			Properties: props,
		})
		if err != nil {
			return "", eris.Wrap(err, "report: update notion page")
		}
		zap.L().Info("daily report page updated in notion",
			zap.String("page_id", string(page.ID)),
			zap.String("date", rep.Date.Format("2006-01-02")),
		)
		return string(page.ID), nil
	}

	page, err := client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(dbID),
		},
		Properties: props,
	})
	if err != nil {
		return "", eris.Wrap(err, "report: create notion page")
	}

	zap.L().Info("daily report published to notion",
		zap.String("page_id", string(page.ID)),
		zap.String("date", rep.Date.Format("2006-01-02")),
	)
	return string(page.ID), nil
}

func dailyPageProperties(rep *DailyReport, narrative string) notionapi.Properties {
	date := notionapi.Date(rep.Date)
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{
					Content: "Lead Validation " + rep.Date.Format("2006-01-02"),
				}},
			},
		},
		"Date": notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
		"Leads":       notionapi.NumberProperty{Number: float64(rep.Totals.TotalLeads)},
		"Fake Leads":  notionapi.NumberProperty{Number: float64(rep.Totals.FakeLeads)},
		"Avg Quality": notionapi.NumberProperty{Number: rep.Totals.AvgQuality},
		"Avg Fraud":   notionapi.NumberProperty{Number: rep.Totals.AvgFraud},
		"Alerts":      notionapi.NumberProperty{Number: float64(len(rep.Alerts))},
		"Summary": notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: summaryLine(rep)}},
			},
		},
	}
	if rep.Status != "" {
		props["Status"] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(rep.Status)},
		}
	}
	if narrative != "" {
		if len(narrative) > notionTextLimit {
			narrative = narrative[:notionTextLimit]
		}
		props["Narrative"] = notionapi.RichTextProperty{
			Type: notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: narrative}},
			},
		}
	}
	return props
}

// summaryLine packs the headline numbers into one property-sized string.
func summaryLine(rep *DailyReport) string {
	if rep.NoData {
		return "No validations recorded."
	}
	return fmt.Sprintf("%d leads from %d sources, %d fake, avg quality %.1f, avg fraud %.1f",
		rep.Totals.TotalLeads, rep.Totals.UniqueSources, rep.Totals.FakeLeads,
		rep.Totals.AvgQuality, rep.Totals.AvgFraud)
}
