package notion

import (
	"context"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// MockClient implements Client for tests here and in consuming packages.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *MockClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestNewClient_ReturnsClient(t *testing.T) {
	var c Client = NewClient("secret-token")
	require.NotNil(t, c)
}

func TestWithRateLimit(t *testing.T) {
	t.Run("sets rate and burst", func(t *testing.T) {
		c := &notionClient{}
		WithRateLimit(2.5)(c)
		require.NotNil(t, c.limiter)
		assert.Equal(t, rate.Limit(2.5), c.limiter.Limit())
		assert.Equal(t, 2, c.limiter.Burst())
	})

	t.Run("fractional rate keeps burst of one", func(t *testing.T) {
		c := &notionClient{}
		WithRateLimit(0.5)(c)
		require.NotNil(t, c.limiter)
		assert.Equal(t, 1, c.limiter.Burst())
	})

	t.Run("zero and negative disable throttling", func(t *testing.T) {
		for _, rps := range []float64{0, -1} {
			c := &notionClient{limiter: rate.NewLimiter(3, 1)}
			WithRateLimit(rps)(c)
			assert.Nil(t, c.limiter)
		}
	})
}

func TestThrottle_CancelledContext(t *testing.T) {
	c := &notionClient{limiter: rate.NewLimiter(rate.Every(time.Hour), 0)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.throttle(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: rate limit")
}

func TestThrottle_NilLimiterPassesThrough(t *testing.T) {
	c := &notionClient{}
	assert.NoError(t, c.throttle(context.Background()))
}
