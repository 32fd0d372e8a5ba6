package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ExportName builds a timestamped export filename, e.g.
// "leadval_daily_20260811_153000.csv".
func ExportName(kind, ext string) string {
	return fmt.Sprintf("leadval_%s_%s.%s", kind, time.Now().UTC().Format("20060102_150405"), ext)
}

// ExportDailyCSV writes the daily per-source table as a CSV file.
func ExportDailyCSV(rep *DailyReport, path string) error {
	return writeCSV(path, dailySourcesSection(rep))
}

// ExportScorecardCSV writes the source aggregates as a CSV file.
func ExportScorecardCSV(card *SourceScorecard, path string) error {
	return writeCSV(path, scorecardSourcesSection(card))
}

// ExportTrendsCSV writes the period series as a CSV file.
func ExportTrendsCSV(rep *TrendReport, path string) error {
	return writeCSV(path, trendPeriodsSection(rep))
}

// ExportDailyXLSX writes the daily report as a workbook with one sheet per
// non-empty section.
func ExportDailyXLSX(rep *DailyReport, path string) error {
	return writeXLSX(path, []sheetSection{
		dailySummarySection(rep),
		dailySourcesSection(rep),
		dailyAlertsSection(rep),
		dailyFakeLeadsSection(rep),
		dailyHourlySection(rep),
		dailyInconsistenciesSection(rep),
	})
}

// ExportScorecardXLSX writes the scorecard as a workbook.
func ExportScorecardXLSX(card *SourceScorecard, path string) error {
	return writeXLSX(path, []sheetSection{
		scorecardSummarySection(card),
		scorecardSourcesSection(card),
		scorecardWorstSection(card),
	})
}

// ExportTrendsXLSX writes the trend series as a workbook.
func ExportTrendsXLSX(rep *TrendReport, path string) error {
	return writeXLSX(path, []sheetSection{
		trendSummarySection(rep),
		trendPeriodsSection(rep),
	})
}

type sheetSection struct {
	name   string
	header []string
	rows   [][]string
}

func writeCSV(path string, sec sheetSection) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "report: create export file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(sec.header); err != nil {
		return eris.Wrap(err, "report: write header")
	}
	for _, row := range sec.rows {
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "report: write row")
		}
	}
	return nil
}

// writeXLSX saves one sheet per section, skipping sections with no rows. The
// Summary sheet always has rows, so the workbook is never empty.
func writeXLSX(path string, sections []sheetSection) error {
	file := xlsx.NewFile()
	for _, sec := range sections {
		if len(sec.rows) == 0 {
			continue
		}
		sheet, err := file.AddSheet(sec.name)
		if err != nil {
			return eris.Wrapf(err, "report: add sheet %s", sec.name)
		}
		hr := sheet.AddRow()
		for _, h := range sec.header {
			hr.AddCell().SetString(h)
		}
		for _, row := range sec.rows {
			r := sheet.AddRow()
			for _, v := range row {
				r.AddCell().SetString(v)
			}
		}
	}
	if err := file.Save(path); err != nil {
		return eris.Wrap(err, "report: save workbook")
	}
	return nil
}

func dailySummarySection(rep *DailyReport) sheetSection {
	return sheetSection{
		name:   "Summary",
		header: []string{"metric", "value"},
		rows: [][]string{
			{"date", rep.Date.Format("2006-01-02")},
			{"generated_at", tstr(rep.GeneratedAt)},
			{"freshness", string(rep.Freshness)},
			{"status", string(rep.Status)},
			{"total_leads", itoa(rep.Totals.TotalLeads)},
			{"unique_sources", itoa(rep.Totals.UniqueSources)},
			{"avg_quality", f1(rep.Totals.AvgQuality)},
			{"quality_count", itoa(rep.Totals.QualityCount)},
			{"avg_fraud", f1(rep.Totals.AvgFraud)},
			{"fake_leads", itoa(rep.Totals.FakeLeads)},
			{"likely_fakes", itoa(rep.Totals.LikelyFakes)},
			{"high_fraud", itoa(rep.Totals.HighFraud)},
			{"critical_fraud", itoa(rep.Totals.CriticalFraud)},
			{"disposable_emails", itoa(rep.Totals.Disposable)},
			{"bounce_likely", itoa(rep.Totals.BounceLikely)},
			{"gibberish_emails", itoa(rep.Totals.Gibberish)},
		},
	}
}

func dailySourcesSection(rep *DailyReport) sheetSection {
	sec := sheetSection{
		name: "Sources",
		header: []string{
			"source", "leads", "fake_leads", "fake_pct",
			"critical_fraud", "critical_pct", "avg_fraud", "risk",
			"worst_rank", "alert_volume", "alert_percentage",
		},
	}
	for i := range rep.Sources {
		s := &rep.Sources[i]
		sec.rows = append(sec.rows, []string{
			s.Source,
			itoa(s.TotalLeads),
			itoa(s.FakeLeadCount),
			f1(s.FakeLeadPct),
			itoa(s.CriticalFraudCnt),
			f1(s.CriticalFraudPct),
			f1(s.AvgFraud),
			string(s.Risk),
			itoa(s.WorstSourceRank),
			boolStr(s.AlertOnVolume),
			boolStr(s.AlertOnPercentage),
		})
	}
	return sec
}

func dailyAlertsSection(rep *DailyReport) sheetSection {
	sec := sheetSection{
		name:   "Alerts",
		header: []string{"source", "kind", "fake_leads", "total_leads", "fake_pct", "message"},
	}
	for _, a := range rep.Alerts {
		sec.rows = append(sec.rows, []string{
			a.Source, a.Kind, itoa(a.FakeLeads), itoa(a.TotalLeads), f1(a.FakePct), a.Message,
		})
	}
	return sec
}

func dailyFakeLeadsSection(rep *DailyReport) sheetSection {
	sec := sheetSection{
		name: "Fake Leads",
		header: []string{
			"lead_id", "task_id", "source", "company", "email",
			"fraud_score", "risk_level", "action", "validated_at",
		},
	}
	for _, f := range rep.FakeLeads {
		sec.rows = append(sec.rows, []string{
			f.LeadID, f.TaskID, f.Source, f.Company, f.Email,
			f1(f.FraudScore), string(f.RiskLevel), string(f.Action), tstr(f.ValidatedAt),
		})
	}
	return sec
}

func dailyHourlySection(rep *DailyReport) sheetSection {
	sec := sheetSection{
		name:   "Hourly",
		header: []string{"hour", "leads", "fake_leads", "fake_pct"},
	}
	for _, h := range rep.Hourly {
		sec.rows = append(sec.rows, []string{
			fmt.Sprintf("%02d:00", h.Hour), itoa(h.Leads), itoa(h.FakeLeads), f1(h.FakeLeadPct),
		})
	}
	return sec
}

func dailyInconsistenciesSection(rep *DailyReport) sheetSection {
	sec := sheetSection{
		name: "Inconsistencies",
		header: []string{
			"lead_id", "task_id", "source", "kind", "severity",
			"fraud_score", "fake_flag", "recommendation", "validated_at",
		},
	}
	for _, inc := range rep.Inconsistencies {
		sec.rows = append(sec.rows, []string{
			inc.LeadID, inc.TaskID, inc.Source, inc.Kind, string(inc.Severity),
			f1(inc.FraudScore), boolStr(inc.FakeFlag), inc.Recommendation, tstr(inc.ValidatedAt),
		})
	}
	return sec
}

func scorecardSummarySection(card *SourceScorecard) sheetSection {
	return sheetSection{
		name:   "Summary",
		header: []string{"metric", "value"},
		rows: [][]string{
			{"window_start", formatBound(card.WindowStart)},
			{"window_end", formatBound(card.WindowEnd)},
			{"generated_at", tstr(card.GeneratedAt)},
			{"total_leads", itoa(card.Totals.TotalLeads)},
			{"unique_sources", itoa(card.Totals.UniqueSources)},
			{"avg_quality", f1(card.Totals.AvgQuality)},
			{"avg_fraud", f1(card.Totals.AvgFraud)},
			{"fake_leads", itoa(card.Totals.FakeLeads)},
		},
	}
}

func scorecardSourcesSection(card *SourceScorecard) sheetSection {
	sec := sheetSection{
		name: "Sources",
		header: []string{
			"source", "grade", "leads", "avg_quality", "median_quality", "quality_rank",
			"avg_fraud", "fraud_safety_rank", "volume_rank", "high_quality_pct",
			"fake_leads", "fake_pct", "high_fraud_pct", "critical_fraud",
			"risk", "problem_score", "primary_issue",
		},
	}
	for i := range card.Sources {
		s := &card.Sources[i]
		sec.rows = append(sec.rows, []string{
			s.Source,
			s.Grade,
			itoa(s.TotalLeads),
			f1(s.Quality.Mean),
			f1(s.Quality.Median),
			itoa(s.QualityRank),
			f1(s.Fraud.Mean),
			itoa(s.FraudSafetyRank),
			itoa(s.VolumeRank),
			f1(s.HighQualityPct),
			itoa(s.FakeLeadCount),
			f1(s.FakeLeadPct),
			f1(s.HighFraudPct),
			itoa(s.CriticalFraudCnt),
			string(s.Risk),
			f1(s.ProblemScore),
			s.PrimaryIssue,
		})
	}
	return sec
}

func scorecardWorstSection(card *SourceScorecard) sheetSection {
	sec := sheetSection{
		name:   "Remediation",
		header: []string{"priority", "source", "problem_score", "fake_leads", "fake_pct", "primary_issue"},
	}
	for i := range card.Worst {
		s := &card.Worst[i]
		sec.rows = append(sec.rows, []string{
			itoa(s.RemediationPriority), s.Source, f1(s.ProblemScore),
			itoa(s.FakeLeadCount), f1(s.FakeLeadPct), s.PrimaryIssue,
		})
	}
	return sec
}

func trendSummarySection(rep *TrendReport) sheetSection {
	return sheetSection{
		name:   "Summary",
		header: []string{"metric", "value"},
		rows: [][]string{
			{"granularity", string(rep.Granularity)},
			{"source", rep.Source},
			{"generated_at", tstr(rep.GeneratedAt)},
			{"periods", itoa(len(rep.Periods))},
		},
	}
}

func trendPeriodsSection(rep *TrendReport) sheetSection {
	sec := sheetSection{
		name: "Periods",
		header: []string{
			"period_start", "source", "leads", "volume_delta",
			"avg_quality", "median_quality", "quality_delta",
			"avg_fraud", "median_fraud", "fraud_delta",
			"fake_leads", "fake_pct", "high_quality_pct", "high_fraud_pct",
			"email_pass", "phone_pass", "name_pass", "company_pass", "completeness_pass",
			"quality_rank", "fraud_rank",
		},
	}
	for i := range rep.Periods {
		p := &rep.Periods[i]
		sec.rows = append(sec.rows, []string{
			p.PeriodStart.Format("2006-01-02"),
			p.Source,
			itoa(p.Leads),
			pint(p.VolumeDelta),
			f1(p.AvgQuality),
			f1(p.MedianQuality),
			pf1(p.QualityDelta),
			f1(p.AvgFraud),
			f1(p.MedianFraud),
			pf1(p.FraudDelta),
			itoa(p.FakeLeads),
			f1(p.FakeLeadPct),
			f1(p.HighQualityPct),
			f1(p.HighFraudPct),
			f1(p.EmailPassRate),
			f1(p.PhonePassRate),
			f1(p.NamePassRate),
			f1(p.CompanyPassRate),
			f1(p.CompletenessPassRate),
			itoa(p.QualityRank),
			itoa(p.FraudRank),
		})
	}
	return sec
}

func f1(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

func itoa(v int) string { return strconv.Itoa(v) }

func boolStr(v bool) string { return strconv.FormatBool(v) }

func tstr(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func pf1(v *float64) string {
	if v == nil {
		return ""
	}
	return f1(*v)
}

func pint(v *int) string {
	if v == nil {
		return ""
	}
	return itoa(*v)
}
