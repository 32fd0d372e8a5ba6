// Package normalize canonicalizes the heterogeneous raw score fields of a
// validation record onto the unit interval. Each logical metric has a fixed
// fallback chain of candidate fields (most authoritative first); scale
// conversion happens the moment a candidate is selected, so no un-normalized
// value ever reaches an aggregate.
package normalize

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadval-cli/internal/model"
)

// scale identifies the raw range a candidate field is expressed in.
type scale int

const (
	unitScale     scale = iota // already [0,1]
	tenPointScale              // [0,10], divided by 10
	percentScale               // [0,100], divided by 100
)

// candidate is one source field for a logical metric.
type candidate struct {
	field string
	value *float64
	scale scale
}

// Scores is the normalized view of one record. Quality and the per-point
// values are nil when no candidate field carried them; Fraud defaults to 0
// when absent. All non-nil values are in [0,1].
type Scores struct {
	Quality *float64
	Fraud   float64

	Email        *float64
	Phone        *float64
	Name         *float64
	Company      *float64
	Completeness *float64
}

// Record normalizes one validation record. A candidate that is present but
// outside its declared range (or not a finite number) makes the whole record
// malformed: the caller must exclude it from aggregates and tally it as a
// parse-error case instead of letting a bad value contribute a silent zero.
func Record(r *model.ValidationRecord) (Scores, error) {
	var s Scores

	quality, err := resolve(
		candidate{"api_quality_score", r.APIQualityScore, tenPointScale},
		candidate{"quality_score", r.QualityScore, tenPointScale},
		candidate{"api_lead_score", r.APILeadScore, tenPointScale},
		candidate{"lead_score", r.LeadScore, tenPointScale},
	)
	if err != nil {
		return Scores{}, err
	}
	s.Quality = quality

	fraud, err := resolve(
		candidate{"api_fraud_score", r.APIFraudScore, tenPointScale},
		candidate{"fraud_score", r.FraudScore, tenPointScale},
	)
	if err != nil {
		return Scores{}, err
	}
	if fraud != nil {
		s.Fraud = *fraud
	} // absent fraud defaults to 0, not missing

	if s.Email, err = resolve(
		candidate{"email_score", r.EmailScore, unitScale},
		boolCandidate("api_email_valid", r.APIEmailValid),
		boolCandidate("email_valid", r.EmailValid),
	); err != nil {
		return Scores{}, err
	}

	if s.Phone, err = resolve(
		candidate{"phone_score", r.PhoneScore, unitScale},
		boolCandidate("api_phone_valid", r.APIPhoneValid),
		boolCandidate("phone_valid", r.PhoneValid),
	); err != nil {
		return Scores{}, err
	}

	if s.Name, err = resolve(
		candidate{"name_score", r.NameScore, unitScale},
	); err != nil {
		return Scores{}, err
	}

	if s.Company, err = resolve(
		candidate{"company_score", r.CompanyScore, unitScale},
	); err != nil {
		return Scores{}, err
	}

	if s.Completeness, err = resolve(
		candidate{"completeness_score", r.CompletenessScore, unitScale},
		candidate{"data_quality", r.DataQuality, percentScale},
	); err != nil {
		return Scores{}, err
	}

	return s, nil
}

// resolve walks the fallback chain and converts the first present candidate.
func resolve(candidates ...candidate) (*float64, error) {
	for _, c := range candidates {
		if c.value == nil {
			continue
		}
		v, err := c.normalize()
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
	return nil, nil
}

func (c candidate) normalize() (float64, error) {
	v := *c.value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("normalize: %s is not a finite number", c.field)
	}

	var maxRaw float64
	switch c.scale {
	case tenPointScale:
		maxRaw = 10
	case percentScale:
		maxRaw = 100
	default:
		maxRaw = 1
	}
	if v < 0 || v > maxRaw {
		return 0, eris.Errorf("normalize: %s out of range [0,%g]: %g", c.field, maxRaw, v)
	}
	return v / maxRaw, nil
}

// boolCandidate maps a validity boolean onto the unit scale: true is a full
// pass, false a full fail. Used as a last-resort per-point fallback when the
// upstream validator reported only validity, not a score.
func boolCandidate(field string, v *bool) candidate {
	if v == nil {
		return candidate{field: field}
	}
	f := 0.0
	if *v {
		f = 1.0
	}
	return candidate{field: field, value: &f, scale: unitScale}
}
