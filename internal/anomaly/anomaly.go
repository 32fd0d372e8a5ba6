// Package anomaly flags leads whose validation-time fraud signal conflicts
// with their later lifecycle status, and surfaces validation-time
// self-contradictions for the daily report.
package anomaly

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadval-cli/internal/config"
	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/score"
)

// StatusFeed resolves a lead's latest lifecycle status. Implementations must
// honor ctx; a failed or timed-out lookup is reported as an error and the
// caller falls back to StatusUnknown.
type StatusFeed interface {
	CurrentStatus(ctx context.Context, leadID string) (string, error)
}

// StatusUnknown is recorded when the feed cannot resolve a lead. An anomaly
// with unknown status is retained: absence of contradicting evidence is not
// evidence of correctness.
const StatusUnknown = "unknown"

// Inconsistency kinds surfaced on the daily report.
const (
	KindHighFraudAccepted = "HIGH_FRAUD_BUT_ACCEPTED"
	KindFakeFlagLowScore  = "FAKE_FLAG_LOW_SCORE"
	KindRejectLowScore    = "REJECT_RECOMMENDATION_LOW_SCORE"
)

const (
	// severityMediumMin is the fraud floor for MEDIUM anomaly severity.
	severityMediumMin = 0.50
	// fakeLowScoreBelow and rejectLowScoreBelow mark fraud scores too low to
	// justify the fake flag or reject recommendation they accompany.
	fakeLowScoreBelow   = 0.50
	rejectLowScoreBelow = 0.30

	defaultStatusTimeout = 10 * time.Second
	defaultMaxConcurrent = 4
)

// Detector runs the anomaly pass. A nil feed skips status resolution and
// records every anomaly with StatusUnknown, which keeps the pass usable
// offline.
type Detector struct {
	feed       StatusFeed
	cfg        config.AnomalyConfig
	highVolume map[string]struct{}
}

// NewDetector builds a detector. highVolumeSources elevates the business
// impact of fake-flagged leads from those sources.
func NewDetector(feed StatusFeed, cfg config.AnomalyConfig, highVolumeSources []string) *Detector {
	hv := make(map[string]struct{}, len(highVolumeSources))
	for _, s := range highVolumeSources {
		hv[s] = struct{}{}
	}
	return &Detector{feed: feed, cfg: cfg, highVolume: hv}
}

// Detect selects assessments whose validation-time signal warrants a lifecycle
// check, resolves each lead's current status, and returns the anomalies in
// investigation order. Feed failures never fail the pass; the affected leads
// keep StatusUnknown. records, when given, contribute contact fields for
// display and are matched by task identifier.
func (d *Detector) Detect(ctx context.Context, assessments []model.LeadAssessment, records []model.ValidationRecord) []model.AnomalyRecord {
	byTask := make(map[string]*model.ValidationRecord, len(records))
	for i := range records {
		byTask[records[i].TaskID] = &records[i]
	}

	var anomalies []model.AnomalyRecord
	for i := range assessments {
		a := &assessments[i]
		if !candidate(a) {
			continue
		}
		flag := flagOf(a)
		rec := model.AnomalyRecord{
			LeadID:         a.LeadID,
			TaskID:         a.TaskID,
			Source:         a.Source,
			Flag:           flag,
			Severity:       severityOf(a),
			Priority:       priorityOf(flag),
			Impact:         d.impactOf(a),
			FraudScore:     a.Fraud * 10,
			FakeFlag:       a.FakeFlag,
			Recommendation: a.Recommendation,
			CurrentStatus:  StatusUnknown,
			ValidatedAt:    a.ValidatedAt,
			Description:    describe(flag, a.Fraud*10),
		}
		if r, ok := byTask[a.TaskID]; ok {
			rec.FirstName = r.APIFirstName
			rec.LastName = r.APILastName
			rec.Company = r.APICompany
			if rec.Company == "" {
				rec.Company = r.LeadCompany
			}
		}
		anomalies = append(anomalies, rec)
	}

	d.resolveStatuses(ctx, anomalies)

	sort.SliceStable(anomalies, func(i, j int) bool {
		a, b := anomalies[i], anomalies[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Severity != b.Severity {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.FraudScore != b.FraudScore {
			return a.FraudScore > b.FraudScore
		}
		if !a.ValidatedAt.Equal(b.ValidatedAt) {
			return a.ValidatedAt.After(b.ValidatedAt)
		}
		return a.LeadID < b.LeadID
	})
	return anomalies
}

// resolveStatuses fills CurrentStatus in place, bounded per lookup and
// capped in concurrency. Lookups that error keep StatusUnknown.
func (d *Detector) resolveStatuses(ctx context.Context, anomalies []model.AnomalyRecord) {
	if d.feed == nil || len(anomalies) == 0 {
		return
	}

	timeout := defaultStatusTimeout
	if d.cfg.StatusTimeoutSecs > 0 {
		timeout = time.Duration(d.cfg.StatusTimeoutSecs) * time.Second
	}
	limit := defaultMaxConcurrent
	if d.cfg.MaxConcurrent > 0 {
		limit = d.cfg.MaxConcurrent
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i := range anomalies {
		i := i
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			status, err := d.feed.CurrentStatus(lctx, anomalies[i].LeadID)
			if err != nil || status == "" {
				return nil // keep unknown, don't fail the pass
			}
			anomalies[i].CurrentStatus = status
			return nil
		})
	}
	_ = g.Wait()

	unknown := 0
	for i := range anomalies {
		if anomalies[i].CurrentStatus == StatusUnknown {
			unknown++
		}
	}
	zap.L().Info("anomaly: statuses resolved",
		zap.Int("anomalies", len(anomalies)),
		zap.Int("unknown", unknown))
}

// candidate reports whether the assessment carries a fraud signal worth a
// lifecycle check.
func candidate(a *model.LeadAssessment) bool {
	return a.FakeFlag || a.Fraud >= score.FraudHighMin || explicitReject(a)
}

func explicitReject(a *model.LeadAssessment) bool {
	return a.ExplicitAction && a.Action == model.ActionReject
}

// flagOf picks the strongest signal: the explicit fake flag outranks any
// score, then the fraud bands, then an explicit reject recommendation.
func flagOf(a *model.LeadAssessment) model.AnomalyFlag {
	switch {
	case a.FakeFlag:
		return model.FlagFake
	case a.Fraud >= score.FraudCriticalMin:
		return model.FlagCriticalFraud
	case a.Fraud >= score.FraudHighMin:
		return model.FlagHighFraud
	case explicitReject(a):
		return model.FlagReject
	default:
		return model.FlagOther
	}
}

func severityOf(a *model.LeadAssessment) model.AnomalySeverity {
	switch {
	case a.FakeFlag && a.Fraud >= score.FraudCriticalMin:
		return model.SeverityCritical
	case a.FakeFlag || a.Fraud >= score.FraudHighMin:
		return model.SeverityHigh
	case a.Fraud >= severityMediumMin:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func priorityOf(flag model.AnomalyFlag) int {
	switch flag {
	case model.FlagFake:
		return 1
	case model.FlagCriticalFraud:
		return 2
	case model.FlagReject:
		return 3
	default:
		return 4
	}
}

func (d *Detector) impactOf(a *model.LeadAssessment) model.BusinessImpact {
	_, highVolume := d.highVolume[a.Source]
	switch {
	case a.FakeFlag && highVolume:
		return model.ImpactHigh
	case a.FakeFlag, severityOf(a) == model.SeverityCritical:
		return model.ImpactMedium
	default:
		return model.ImpactLow
	}
}

func describe(flag model.AnomalyFlag, fraud10 float64) string {
	switch flag {
	case model.FlagFake:
		return "flagged as fake at validation"
	case model.FlagCriticalFraud:
		return fmt.Sprintf("critical fraud score %.1f/10 at validation", fraud10)
	case model.FlagHighFraud:
		return fmt.Sprintf("high fraud score %.1f/10 at validation", fraud10)
	case model.FlagReject:
		return "validator recommended rejection"
	default:
		return "elevated fraud signal at validation"
	}
}

// Inconsistencies surfaces validation-time self-contradictions: score, flag
// and recommendation disagreeing with each other within a single record. No
// external lookups are involved.
func Inconsistencies(assessments []model.LeadAssessment) []model.Inconsistency {
	var out []model.Inconsistency
	for i := range assessments {
		a := &assessments[i]
		accepted := a.Action == model.ActionAccept

		var kinds []string
		if a.Fraud >= score.FraudCriticalMin && accepted {
			kinds = append(kinds, KindHighFraudAccepted)
		}
		if a.FakeFlag && a.Fraud < fakeLowScoreBelow {
			kinds = append(kinds, KindFakeFlagLowScore)
		}
		if explicitReject(a) && a.Fraud < rejectLowScoreBelow {
			kinds = append(kinds, KindRejectLowScore)
		}

		for _, kind := range kinds {
			out = append(out, model.Inconsistency{
				LeadID:         a.LeadID,
				TaskID:         a.TaskID,
				Source:         a.Source,
				Kind:           kind,
				Severity:       inconsistencySeverity(a, accepted),
				FraudScore:     a.Fraud * 10,
				FakeFlag:       a.FakeFlag,
				Recommendation: a.Recommendation,
				ValidatedAt:    a.ValidatedAt,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Severity != b.Severity {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.FraudScore != b.FraudScore {
			return a.FraudScore > b.FraudScore
		}
		return a.LeadID < b.LeadID
	})
	return out
}

func inconsistencySeverity(a *model.LeadAssessment, accepted bool) model.AnomalySeverity {
	switch {
	case a.FakeFlag && accepted:
		return model.SeverityCritical
	case a.Fraud >= score.FraudCriticalMin && accepted:
		return model.SeverityHigh
	case a.FakeFlag:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}
