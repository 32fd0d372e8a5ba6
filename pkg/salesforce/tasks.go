package salesforce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// TaskSubjectPrefix selects the validation tasks written by the upstream
// validator. The subject carries a suffix ("Complete", "Failed", ...) so the
// feed matches on the prefix.
const TaskSubjectPrefix = "Lead Validation"

// TaskRecord is one Task row from the validation feed. Date fields stay in
// Salesforce's wire format; ParseTime converts them.
type TaskRecord struct {
	ID               string   `json:"Id"`
	WhoID            string   `json:"WhoId"`
	WhatID           string   `json:"WhatId"`
	Subject          string   `json:"Subject"`
	Description      string   `json:"Description"`
	CreatedDate      string   `json:"CreatedDate"`
	LastModifiedDate string   `json:"LastModifiedDate"`
	Who              *TaskWho `json:"Who"`
}

// TaskWho carries the Lead fields resolved through the task's WhoId.
type TaskWho struct {
	LeadSource string `json:"LeadSource"`
	Company    string `json:"Company"`
	Email      string `json:"Email"`
}

// taskFields are the SOQL fields selected for the task feed. Who is resolved
// polymorphically; the TYPEOF arm only yields values when WhoId is a Lead.
var taskFields = []string{
	"Id", "WhoId", "WhatId", "Subject", "Description",
	"CreatedDate", "LastModifiedDate",
	"TYPEOF Who WHEN Lead THEN LeadSource, Company, Email END",
}

// FetchValidationTasks queries the validation task feed, newest modification
// first. A zero since fetches the full history; otherwise only tasks modified
// at or after since are returned.
func FetchValidationTasks(ctx context.Context, c Client, since time.Time) ([]TaskRecord, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Task WHERE Subject LIKE '%s%%' AND WhoId IN (SELECT Id FROM Lead)",
		strings.Join(taskFields, ", "),
		escapeSoql(TaskSubjectPrefix),
	)
	if !since.IsZero() {
		// SOQL datetime literals are unquoted.
		soql += fmt.Sprintf(" AND LastModifiedDate >= %s", since.UTC().Format(time.RFC3339))
	}
	soql += " ORDER BY LastModifiedDate DESC"

	var tasks []TaskRecord
	if err := c.Query(ctx, soql, &tasks); err != nil {
		return nil, eris.Wrap(err, "sf: fetch validation tasks")
	}
	return tasks, nil
}

// sfTimeLayouts covers the datetime formats Salesforce emits: the REST API's
// millisecond form with a colonless offset, and plain RFC 3339.
var sfTimeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	time.RFC3339,
}

// ParseTime converts a Salesforce datetime string to UTC. An empty string
// yields a zero time without error.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range sfTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("sf: unrecognized datetime %q", s)
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
