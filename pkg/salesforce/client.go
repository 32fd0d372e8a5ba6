// Package salesforce provides read-only Salesforce API access for the
// validation task feed and lead status lookups.
package salesforce

import (
	"context"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client is the slice of the Salesforce API the task feed and status
// lookups need. Nothing writes back through this interface.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
}

// ClientOption configures the Salesforce client.
type ClientOption func(*sfClient)

// WithRateLimit throttles API calls to rps per second, with a burst of the
// integer part (at least 1). Zero or negative leaves calls unthrottled.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// sfClient adapts go-salesforce/v3. The library takes no context, so only
// the rate limiter wait is cancellable.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient wraps an authenticated go-salesforce session.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *sfClient) throttle(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "sf: rate limit")
	}
	return nil
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	if err := c.throttle(ctx); err != nil {
		return err
	}
	if err := c.sf.Query(soql, out); err != nil {
		return eris.Wrap(err, "sf: query")
	}
	return nil
}
