package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotionClient struct {
	queryResp *notionapi.DatabaseQueryResponse
	queryErr  error
	createReq *notionapi.PageCreateRequest
	updateID  string
	updateReq *notionapi.PageUpdateRequest
	page      *notionapi.Page
	err       error
}

func (f *fakeNotionClient) QueryDatabase(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryResp != nil {
		return f.queryResp, nil
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

func (f *fakeNotionClient) CreatePage(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	f.createReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func (f *fakeNotionClient) UpdatePage(_ context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	f.updateID = pageID
	f.updateReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func TestPublishDaily(t *testing.T) {
	fake := &fakeNotionClient{page: &notionapi.Page{ID: notionapi.ObjectID("page-123")}}

	id, err := PublishDaily(context.Background(), fake, "db-reports", sampleDaily(), "")
	require.NoError(t, err)
	assert.Equal(t, "page-123", id)

	require.NotNil(t, fake.createReq)
	assert.Equal(t, notionapi.ParentTypeDatabaseID, fake.createReq.Parent.Type)
	assert.Equal(t, notionapi.DatabaseID("db-reports"), fake.createReq.Parent.DatabaseID)

	props := fake.createReq.Properties
	title, ok := props["Name"].(notionapi.TitleProperty)
	require.True(t, ok)
	require.Len(t, title.Title, 1)
	assert.Equal(t, "Lead Validation 2026-08-10", title.Title[0].Text.Content)

	date, ok := props["Date"].(notionapi.DateProperty)
	require.True(t, ok)
	require.NotNil(t, date.Date.Start)
	assert.Equal(t, "2026-08-10", time.Time(*date.Date.Start).Format("2006-01-02"))

	assert.Equal(t, float64(8), props["Leads"].(notionapi.NumberProperty).Number)
	assert.Equal(t, float64(3), props["Fake Leads"].(notionapi.NumberProperty).Number)
	assert.InDelta(t, 6.1, props["Avg Quality"].(notionapi.NumberProperty).Number, 0.001)
	assert.InDelta(t, 3.9, props["Avg Fraud"].(notionapi.NumberProperty).Number, 0.001)
	assert.Equal(t, float64(1), props["Alerts"].(notionapi.NumberProperty).Number)

	summary, ok := props["Summary"].(notionapi.RichTextProperty)
	require.True(t, ok)
	require.Len(t, summary.RichText, 1)
	assert.Equal(t, "8 leads from 2 sources, 3 fake, avg quality 6.1, avg fraud 3.9",
		summary.RichText[0].Text.Content)

	status, ok := props["Status"].(notionapi.SelectProperty)
	require.True(t, ok)
	assert.Equal(t, "GOOD", status.Select.Name)

	_, hasNarrative := props["Narrative"]
	assert.False(t, hasNarrative, "narrative property should be omitted when empty")
}

func TestPublishDaily_UpdatesExistingPage(t *testing.T) {
	fake := &fakeNotionClient{
		queryResp: &notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{{ID: notionapi.ObjectID("page-existing")}},
		},
		page: &notionapi.Page{ID: notionapi.ObjectID("page-existing")},
	}

	id, err := PublishDaily(context.Background(), fake, "db-reports", sampleDaily(), "")
	require.NoError(t, err)
	assert.Equal(t, "page-existing", id)

	assert.Nil(t, fake.createReq, "existing page should be updated, not recreated")
	assert.Equal(t, "page-existing", fake.updateID)
	require.NotNil(t, fake.updateReq)
	assert.Equal(t, float64(8), fake.updateReq.Properties["Leads"].(notionapi.NumberProperty).Number)
}

func TestPublishDaily_LookupError(t *testing.T) {
	fake := &fakeNotionClient{queryErr: eris.New("database unreachable")}

	_, err := PublishDaily(context.Background(), fake, "db-reports", sampleDaily(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "look up notion page")
	assert.Nil(t, fake.createReq)
}

func TestPublishDaily_TruncatesNarrative(t *testing.T) {
	fake := &fakeNotionClient{page: &notionapi.Page{ID: notionapi.ObjectID("page-456")}}

	long := strings.Repeat("x", notionTextLimit+500)
	_, err := PublishDaily(context.Background(), fake, "db-reports", sampleDaily(), long)
	require.NoError(t, err)

	narrative, ok := fake.createReq.Properties["Narrative"].(notionapi.RichTextProperty)
	require.True(t, ok)
	require.Len(t, narrative.RichText, 1)
	assert.Len(t, narrative.RichText[0].Text.Content, notionTextLimit)
}

func TestPublishDaily_NoDatabase(t *testing.T) {
	fake := &fakeNotionClient{}

	_, err := PublishDaily(context.Background(), fake, "", sampleDaily(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion report database not configured")
	assert.Nil(t, fake.createReq)
}

func TestPublishDaily_CreateError(t *testing.T) {
	fake := &fakeNotionClient{err: eris.New("rate limited")}

	_, err := PublishDaily(context.Background(), fake, "db-reports", sampleDaily(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create notion page")
}

func TestPublishDaily_NoData(t *testing.T) {
	fake := &fakeNotionClient{page: &notionapi.Page{ID: notionapi.ObjectID("page-789")}}

	rep := &DailyReport{
		Date:      time.Date(2026, 8, 11, 0, 0, 0, 0, time.UTC),
		NoData:    true,
		Freshness: "No data",
	}

	_, err := PublishDaily(context.Background(), fake, "db-reports", rep, "")
	require.NoError(t, err)

	summary := fake.createReq.Properties["Summary"].(notionapi.RichTextProperty)
	assert.Equal(t, "No validations recorded.", summary.RichText[0].Text.Content)

	_, hasStatus := fake.createReq.Properties["Status"]
	assert.False(t, hasStatus)
}
