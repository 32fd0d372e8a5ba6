package notion

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// FindByDate returns the first page whose date property equals the given day,
// or nil when the database holds no page for it. The publisher uses this to
// update a day's page in place instead of creating duplicates on re-runs.
func FindByDate(ctx context.Context, c Client, dbID, property string, day time.Time) (*notionapi.Page, error) {
	date := notionapi.Date(day)
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: property,
			Date: &notionapi.DateFilterCondition{
				Equals: &date,
			},
		},
		PageSize: 1,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: find page for %s", day.Format("2006-01-02"))
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}
