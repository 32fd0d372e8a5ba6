package score

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadval-cli/internal/config"
)

// DefaultScoringConfig returns a config.ScoringConfig with the stock
// weights. Point weights sum to 1.0; quality and fraud shares sum to 1.0.
func DefaultScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		// Point weights (sum = 1.0).
		EmailWeight:        0.30,
		PhoneWeight:        0.30,
		NameWeight:         0.15,
		CompanyWeight:      0.10,
		CompletenessWeight: 0.15,

		// Overall score shares (sum = 1.0).
		QualityShare: 0.70,
		FraudShare:   0.30,
	}
}

// WeightSum returns the sum of the per-point weights.
func WeightSum(c config.ScoringConfig) float64 {
	return c.EmailWeight + c.PhoneWeight + c.NameWeight +
		c.CompanyWeight + c.CompletenessWeight
}

// ValidateConfig checks that a ScoringConfig is internally consistent.
func ValidateConfig(c config.ScoringConfig) error {
	var errs []string

	// All weights must be non-negative.
	weights := map[string]float64{
		"email_weight":        c.EmailWeight,
		"phone_weight":        c.PhoneWeight,
		"name_weight":         c.NameWeight,
		"company_weight":      c.CompanyWeight,
		"completeness_weight": c.CompletenessWeight,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	sum := WeightSum(c)

	// Weights must sum to a positive number close to 1 (allow tolerance for
	// floating-point).
	if sum <= 0 {
		errs = append(errs, "point weight sum must be > 0")
	} else if math.Abs(sum-1) > 0.01 {
		errs = append(errs, fmt.Sprintf("point weights should sum to 1.0, got %.2f", sum))
	}

	// Overall score shares.
	if c.QualityShare < 0 {
		errs = append(errs, "quality_share must be >= 0")
	}
	if c.FraudShare < 0 {
		errs = append(errs, "fraud_share must be >= 0")
	}
	if math.Abs(c.QualityShare+c.FraudShare-1) > 0.01 {
		errs = append(errs, fmt.Sprintf("quality_share + fraud_share should sum to 1.0, got %.2f",
			c.QualityShare+c.FraudShare))
	}

	if len(errs) > 0 {
		return eris.Errorf("score: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// profileFile mirrors the YAML scoring profile layout. Pointer fields
// distinguish "unset" from an explicit zero.
type profileFile struct {
	Scoring struct {
		Weights struct {
			Email        *float64 `yaml:"email"`
			Phone        *float64 `yaml:"phone"`
			Name         *float64 `yaml:"name"`
			Company      *float64 `yaml:"company"`
			Completeness *float64 `yaml:"completeness"`
		} `yaml:"weights"`
		QualityShare      *float64 `yaml:"quality_share"`
		FraudShare        *float64 `yaml:"fraud_share"`
		HighVolumeSources []string `yaml:"high_volume_sources"`
	} `yaml:"scoring"`
}

// LoadProfile reads a scoring profile from a YAML file, overlaying it on
// base. Values the profile leaves unset keep their base value. The merged
// config is validated before being returned.
func LoadProfile(path string, base config.ScoringConfig) (config.ScoringConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, eris.Wrapf(err, "score: read profile %s", path)
	}

	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return base, eris.Wrapf(err, "score: parse profile %s", path)
	}

	cfg := base
	if v := pf.Scoring.Weights.Email; v != nil {
		cfg.EmailWeight = *v
	}
	if v := pf.Scoring.Weights.Phone; v != nil {
		cfg.PhoneWeight = *v
	}
	if v := pf.Scoring.Weights.Name; v != nil {
		cfg.NameWeight = *v
	}
	if v := pf.Scoring.Weights.Company; v != nil {
		cfg.CompanyWeight = *v
	}
	if v := pf.Scoring.Weights.Completeness; v != nil {
		cfg.CompletenessWeight = *v
	}
	if v := pf.Scoring.QualityShare; v != nil {
		cfg.QualityShare = *v
	}
	if v := pf.Scoring.FraudShare; v != nil {
		cfg.FraudShare = *v
	}
	if len(pf.Scoring.HighVolumeSources) > 0 {
		cfg.HighVolumeSources = pf.Scoring.HighVolumeSources
	}

	if err := ValidateConfig(cfg); err != nil {
		return base, err
	}
	return cfg, nil
}
