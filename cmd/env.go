package main

import (
	"context"
	"os"
	"time"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadval-cli/internal/config"
	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/score"
	"github.com/sells-group/leadval-cli/internal/store"
	sfpkg "github.com/sells-group/leadval-cli/pkg/salesforce"
)

// openStore validates the config for the given command mode, then opens and
// migrates the configured store backend. Callers own the close.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Store)
}

// initSalesforce authenticates against the CRM. JWT bearer flow when a key
// path is configured, username-password flow otherwise.
func initSalesforce() (sfpkg.Client, error) {
	creds := salesforce.Creds{
		Domain:      cfg.Salesforce.LoginURL,
		Username:    cfg.Salesforce.Username,
		ConsumerKey: cfg.Salesforce.ClientID,
	}
	if cfg.Salesforce.KeyPath != "" {
		pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
		if err != nil {
			return nil, eris.Wrap(err, "read salesforce JWT private key")
		}
		creds.ConsumerRSAPem = string(pemData)
	} else {
		creds.Password = cfg.Salesforce.Password
		creds.SecurityToken = cfg.Salesforce.SecurityToken
		creds.ConsumerSecret = cfg.Salesforce.ClientSecret
	}

	sf, err := salesforce.Init(creds)
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(cfg.Salesforce.RateLimit)), nil
}

// scoringConfig returns the effective scoring profile: config values with
// the optional YAML profile file layered on top.
func scoringConfig() (config.ScoringConfig, error) {
	sc := cfg.Scoring
	if cfg.Scoring.ProfilePath == "" {
		return sc, nil
	}
	sc, err := score.LoadProfile(cfg.Scoring.ProfilePath, sc)
	if err != nil {
		return sc, err
	}
	zap.L().Debug("scoring profile loaded", zap.String("path", cfg.Scoring.ProfilePath))
	return sc, nil
}

// windowFlag converts a --window day count to a time window ending now.
// Zero or negative means unbounded.
func windowFlag(days int) model.Window {
	if days <= 0 {
		return model.Window{}
	}
	return model.LastNDays(time.Now().UTC(), days)
}
