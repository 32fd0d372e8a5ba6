// Package report assembles daily summaries, source scorecards, and trend
// reports from stored validations, and delivers them: text rendering, CSV and
// XLSX export, FTP archival, webhook alerts, Notion publishing, and an
// optional LLM-written narrative.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadval-cli/internal/aggregate"
	"github.com/sells-group/leadval-cli/internal/anomaly"
	"github.com/sells-group/leadval-cli/internal/config"
	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/score"
	"github.com/sells-group/leadval-cli/internal/store"
	"github.com/sells-group/leadval-cli/internal/trend"
)

// Alert flags a source whose fake-lead volume or rate crossed the configured
// threshold on the report day.
type Alert struct {
	Source     string  `json:"source"`
	Kind       string  `json:"kind"` // "volume" or "percentage"
	FakeLeads  int     `json:"fake_leads"`
	TotalLeads int     `json:"total_leads"`
	FakePct    float64 `json:"fake_pct"`
	Message    string  `json:"message"`
}

// FakeLeadDetail is one flagged lead in the daily report, joined back to the
// stored record for company and email context.
type FakeLeadDetail struct {
	LeadID  string `json:"lead_id"`
	TaskID  string `json:"task_id"`
	Source  string `json:"source"`
	Company string `json:"company,omitempty"`
	Email   string `json:"email,omitempty"`

	// FraudScore is on the 10-point presentation scale.
	FraudScore  float64         `json:"fraud_score"`
	RiskLevel   model.RiskLevel `json:"risk_level"`
	Action      model.Action    `json:"action"`
	ValidatedAt time.Time       `json:"validated_at"`
}

// HourlyBucket is one non-empty hour of the report day.
type HourlyBucket struct {
	Hour        int     `json:"hour"`
	Leads       int     `json:"leads"`
	FakeLeads   int     `json:"fake_leads"`
	FakeLeadPct float64 `json:"fake_lead_pct"`
}

// DailyReport is the full daily summary for one UTC day.
type DailyReport struct {
	Date        time.Time `json:"date"`
	GeneratedAt time.Time `json:"generated_at"`
	NoData      bool      `json:"no_data,omitempty"`

	Totals  aggregate.Totals         `json:"totals"`
	Sources []model.DailySourceStats `json:"sources,omitempty"`
	Alerts  []Alert                  `json:"alerts,omitempty"`

	FakeLeads       []FakeLeadDetail      `json:"fake_leads,omitempty"`
	Hourly          []HourlyBucket        `json:"hourly,omitempty"`
	Inconsistencies []model.Inconsistency `json:"inconsistencies,omitempty"`

	Status    model.SystemStatus `json:"status,omitempty"`
	Freshness model.Freshness    `json:"freshness"`
}

// SourceScorecard ranks and grades every source over a window.
type SourceScorecard struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	GeneratedAt time.Time `json:"generated_at"`
	NoData      bool      `json:"no_data,omitempty"`

	Totals  aggregate.Totals        `json:"totals"`
	Sources []model.SourceAggregate `json:"sources,omitempty"`
	Worst   []model.SourceAggregate `json:"worst,omitempty"`
}

// TrendReport is a period series at one granularity, optionally filtered to a
// single source.
type TrendReport struct {
	Granularity model.Granularity `json:"granularity"`
	Source      string            `json:"source,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
	NoData      bool              `json:"no_data,omitempty"`

	Periods []model.TrendPeriodSnapshot `json:"periods,omitempty"`
}

// Builder assembles reports from the store.
type Builder struct {
	store store.Store
	cfg   *config.Config
}

// NewBuilder creates a report builder over the given store.
func NewBuilder(st store.Store, cfg *config.Config) *Builder {
	return &Builder{store: st, cfg: cfg}
}

// DailyOptions controls optional daily report sections.
type DailyOptions struct {
	// Hourly adds the per-hour volume breakdown.
	Hourly bool
}

// Daily builds the daily summary for the UTC day containing date.
func (b *Builder) Daily(ctx context.Context, date time.Time, opts DailyOptions) (*DailyReport, error) {
	day := model.Day(date.UTC())
	now := time.Now().UTC()

	records, err := b.store.ListValidations(ctx, store.ValidationFilter{Window: day})
	if err != nil {
		return nil, eris.Wrap(err, "report: list validations")
	}

	rep := &DailyReport{
		Date:        day.Start,
		GeneratedAt: now,
	}

	res := score.AssessBatch(records, b.cfg.Scoring)
	if len(res.Assessments) == 0 {
		rep.NoData = true
		if err := b.stampFreshness(ctx, rep); err != nil {
			return nil, err
		}
		return rep, nil
	}

	rep.Totals = aggregate.ComputeTotals(res.Assessments, day)
	rep.Sources = aggregate.ComputeDailyStats(res.Assessments, day.Start, b.cfg.Report)
	rep.Alerts = buildAlerts(rep.Sources)
	rep.FakeLeads = fakeDetails(res.Assessments, records)
	if opts.Hourly {
		rep.Hourly = hourlyBreakdown(res.Assessments)
	}
	rep.Inconsistencies = anomaly.Inconsistencies(res.Assessments)

	// Status needs at least one measured quality score to mean anything.
	if rep.Totals.QualityCount > 0 {
		rep.Status = StatusOf(rep.Totals.AvgQuality)
	}
	if err := b.stampFreshness(ctx, rep); err != nil {
		return nil, err
	}

	zap.L().Debug("daily report built",
		zap.Time("date", day.Start),
		zap.Int("leads", rep.Totals.TotalLeads),
		zap.Int("alerts", len(rep.Alerts)),
		zap.Int("fake_leads", len(rep.FakeLeads)),
	)
	return rep, nil
}

// Scorecard builds the per-source scorecard over window. A zero window covers
// all stored validations.
func (b *Builder) Scorecard(ctx context.Context, window model.Window) (*SourceScorecard, error) {
	records, err := b.store.ListValidations(ctx, store.ValidationFilter{Window: window})
	if err != nil {
		return nil, eris.Wrap(err, "report: list validations")
	}

	card := &SourceScorecard{
		WindowStart: window.Start,
		WindowEnd:   window.End,
		GeneratedAt: time.Now().UTC(),
	}

	res := score.AssessBatch(records, b.cfg.Scoring)
	if len(res.Assessments) == 0 {
		card.NoData = true
		return card, nil
	}

	card.Totals = aggregate.ComputeTotals(res.Assessments, window)
	card.Sources = aggregate.ComputeSourceAggregates(res.Assessments, window)
	card.Worst = aggregate.WorstSources(card.Sources)
	return card, nil
}

// Trends builds the period series for a granularity, filtered to source when
// non-empty.
func (b *Builder) Trends(ctx context.Context, g model.Granularity, source string, window model.Window) (*TrendReport, error) {
	if !g.Valid() {
		return nil, eris.Errorf("report: unknown granularity %q", g)
	}

	records, err := b.store.ListValidations(ctx, store.ValidationFilter{Window: window})
	if err != nil {
		return nil, eris.Wrap(err, "report: list validations")
	}

	rep := &TrendReport{
		Granularity: g,
		Source:      source,
		GeneratedAt: time.Now().UTC(),
	}

	res := score.AssessBatch(records, b.cfg.Scoring)
	if source == "" {
		rep.Periods, err = trend.Series(res.Assessments, g, window)
	} else {
		rep.Periods, err = sourceSeries(res.Assessments, g, source, window, b.cfg.Trends)
	}
	if err != nil {
		return nil, err
	}
	rep.NoData = len(rep.Periods) == 0
	return rep, nil
}

// sourceSeries computes the per-source series over every source, then keeps
// only the requested one so the cross-source ranks survive the filter.
func sourceSeries(assessments []model.LeadAssessment, g model.Granularity, source string, window model.Window, cfg config.TrendsConfig) ([]model.TrendPeriodSnapshot, error) {
	series, err := trend.SourceSeries(assessments, g, window, cfg)
	if err != nil {
		return nil, err
	}
	var out []model.TrendPeriodSnapshot
	for _, p := range series {
		if p.Source == source {
			out = append(out, p)
		}
	}
	return out, nil
}

// stampFreshness sets rep.Freshness from the newest stored validation, which
// may lie outside the report day.
func (b *Builder) stampFreshness(ctx context.Context, rep *DailyReport) error {
	counts, err := b.store.Counts(ctx)
	if err != nil {
		return eris.Wrap(err, "report: store counts")
	}
	rep.Freshness = FreshnessOf(counts.NewestValidated, time.Now().UTC())
	return nil
}

// buildAlerts emits at most one alert per source. When both thresholds trip,
// the volume alert wins.
func buildAlerts(sources []model.DailySourceStats) []Alert {
	var alerts []Alert
	for i := range sources {
		s := &sources[i]
		switch {
		case s.AlertOnVolume:
			alerts = append(alerts, Alert{
				Source:     s.Source,
				Kind:       "volume",
				FakeLeads:  s.FakeLeadCount,
				TotalLeads: s.TotalLeads,
				FakePct:    s.FakeLeadPct,
				Message:    volumeAlertMessage(s),
			})
		case s.AlertOnPercentage:
			alerts = append(alerts, Alert{
				Source:     s.Source,
				Kind:       "percentage",
				FakeLeads:  s.FakeLeadCount,
				TotalLeads: s.TotalLeads,
				FakePct:    s.FakeLeadPct,
				Message:    percentageAlertMessage(s),
			})
		}
	}
	return alerts
}

func volumeAlertMessage(s *model.DailySourceStats) string {
	return fmt.Sprintf("%s delivered %d fake leads (%.1f%% of %d)",
		s.Source, s.FakeLeadCount, s.FakeLeadPct, s.TotalLeads)
}

func percentageAlertMessage(s *model.DailySourceStats) string {
	return fmt.Sprintf("%s fake-lead rate hit %.1f%% (%d of %d)",
		s.Source, s.FakeLeadPct, s.FakeLeadCount, s.TotalLeads)
}

// fakeDetails joins flagged assessments back to their stored records for
// company and email, sorted worst-first.
func fakeDetails(assessments []model.LeadAssessment, records []model.ValidationRecord) []FakeLeadDetail {
	byTask := make(map[string]*model.ValidationRecord, len(records))
	for i := range records {
		byTask[records[i].TaskID] = &records[i]
	}

	var details []FakeLeadDetail
	for i := range assessments {
		a := &assessments[i]
		if !a.FakeFlag {
			continue
		}
		d := FakeLeadDetail{
			LeadID:      a.LeadID,
			TaskID:      a.TaskID,
			Source:      a.Source,
			FraudScore:  a.Fraud * 10,
			RiskLevel:   a.RiskLevel,
			Action:      a.Action,
			ValidatedAt: a.ValidatedAt,
		}
		if r, ok := byTask[a.TaskID]; ok {
			d.Company = r.LeadCompany
			d.Email = r.LeadEmail
		}
		details = append(details, d)
	}

	sort.Slice(details, func(i, j int) bool {
		if details[i].FraudScore != details[j].FraudScore {
			return details[i].FraudScore > details[j].FraudScore
		}
		return details[i].ValidatedAt.Before(details[j].ValidatedAt)
	})
	return details
}

// hourlyBreakdown buckets assessments by UTC hour, skipping empty hours.
func hourlyBreakdown(assessments []model.LeadAssessment) []HourlyBucket {
	byHour := make(map[int]*HourlyBucket)
	for i := range assessments {
		a := &assessments[i]
		h := a.ValidatedAt.UTC().Hour()
		bucket, ok := byHour[h]
		if !ok {
			bucket = &HourlyBucket{Hour: h}
			byHour[h] = bucket
		}
		bucket.Leads++
		if a.FakeFlag {
			bucket.FakeLeads++
		}
	}

	hours := make([]int, 0, len(byHour))
	for h := range byHour {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	out := make([]HourlyBucket, 0, len(hours))
	for _, h := range hours {
		bucket := byHour[h]
		if bucket.Leads > 0 {
			bucket.FakeLeadPct = float64(bucket.FakeLeads) / float64(bucket.Leads) * 100
		}
		out = append(out, *bucket)
	}
	return out
}

// Status thresholds on the 10-point average quality scale.
const (
	statusExcellentMin = 8.0
	statusGoodMin      = 6.0
	statusFairMin      = 4.0
)

// StatusOf maps a 10-point average quality score to a system status.
func StatusOf(avgQuality float64) model.SystemStatus {
	switch {
	case avgQuality >= statusExcellentMin:
		return model.SystemExcellent
	case avgQuality >= statusGoodMin:
		return model.SystemGood
	case avgQuality >= statusFairMin:
		return model.SystemFair
	default:
		return model.SystemPoor
	}
}

// FreshnessOf labels how stale the newest validation is at now.
func FreshnessOf(newest, now time.Time) model.Freshness {
	if newest.IsZero() {
		return model.FreshnessNoData
	}
	age := now.Sub(newest)
	switch {
	case age <= 24*time.Hour:
		return model.FreshnessFresh
	case age <= 7*24*time.Hour:
		return model.FreshnessRecent
	default:
		return model.FreshnessStale
	}
}
