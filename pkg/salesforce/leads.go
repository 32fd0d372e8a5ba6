package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// statusChunkSize bounds the IN list per status query so the SOQL string
// stays under the API's query length limit.
const statusChunkSize = 200

// leadStatusRow is the projection for status lookups.
type leadStatusRow struct {
	ID     string `json:"Id"`
	Status string `json:"Status"`
}

// LeadStatus returns the current lifecycle status of one lead, or "" when the
// lead does not exist (converted or deleted leads drop out of the Lead table).
func LeadStatus(ctx context.Context, c Client, leadID string) (string, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Status FROM Lead WHERE Id = '%s' LIMIT 1",
		escapeSoql(leadID),
	)

	var rows []leadStatusRow
	if err := c.Query(ctx, soql, &rows); err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("sf: lead status %s", leadID))
	}
	if len(rows) == 0 {
		return "", nil
	}
	return rows[0].Status, nil
}

// LeadStatuses resolves lifecycle statuses for a set of leads in chunked IN
// queries. Leads absent from the result were not found; callers decide how to
// label them.
func LeadStatuses(ctx context.Context, c Client, leadIDs []string) (map[string]string, error) {
	statuses := make(map[string]string, len(leadIDs))

	for start := 0; start < len(leadIDs); start += statusChunkSize {
		end := min(start+statusChunkSize, len(leadIDs))
		chunk := leadIDs[start:end]

		quoted := make([]string, len(chunk))
		for i, id := range chunk {
			quoted[i] = "'" + escapeSoql(id) + "'"
		}
		soql := fmt.Sprintf(
			"SELECT Id, Status FROM Lead WHERE Id IN (%s)",
			strings.Join(quoted, ", "),
		)

		var rows []leadStatusRow
		if err := c.Query(ctx, soql, &rows); err != nil {
			return statuses, eris.Wrap(err, fmt.Sprintf("sf: lead statuses batch %d-%d", start, end))
		}
		for _, row := range rows {
			statuses[row.ID] = row.Status
		}
	}

	return statuses, nil
}
