package analytics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arduino-fleet-backend/config"
)

func strp(s string) *string { return &s }

func fp(f float64) *float64 { return &f }

func tp(t time.Time) *time.Time { return &t }

func sampleRecords() []SessionRecord {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return []SessionRecord{
		{User: strp("bob"), Count: fp(2), Duration: fp(30), Begin: tp(base.Add(2 * time.Hour)), End: tp(base.Add(3 * time.Hour))},
		{User: strp("alice"), Count: fp(1), Duration: fp(10), Begin: tp(base), End: tp(base.Add(time.Hour))},
		{User: strp("alice"), Count: fp(3), Duration: fp(20), Begin: tp(base.Add(24 * time.Hour)), End: tp(base.Add(25 * time.Hour))},
	}
}

func TestTransformDefaultGroupsByUser(t *testing.T) {
	out, err := Transform(sampleRecords(), Options{ViewMode: "default", Agg: "sum"})
	require.NoError(t, err)
	require.Len(t, out, 2)

	// Grouped output is sorted alphabetically by user.
	assert.Equal(t, "alice", *out[0].User)
	assert.Equal(t, float64(4), *out[0].Count)
	assert.Equal(t, float64(30), *out[0].Duration)
	assert.Equal(t, "bob", *out[1].User)
	assert.Equal(t, float64(2), *out[1].Count)
}

func TestTransformAggregations(t *testing.T) {
	for agg, want := range map[string]float64{
		"sum":  4,
		"mean": 2,
		"max":  3,
		"min":  1,
	} {
		out, err := Transform(sampleRecords(), Options{Agg: agg, Users: []string{"alice"}})
		require.NoError(t, err, agg)
		require.Len(t, out, 1, agg)
		assert.Equal(t, want, *out[0].Count, agg)
	}
}

func TestTransformDateSortAndLimit(t *testing.T) {
	out, err := Transform(sampleRecords(), Options{ViewMode: "date", Limit: 2})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "alice", *out[0].User)
	assert.Equal(t, "bob", *out[1].User)
}

func TestTransformDateRangeFilter(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	end := base.Add(12 * time.Hour)
	out, err := Transform(sampleRecords(), Options{ViewMode: "raw", Start: &base, End: &end})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "alice", *out[0].User)
}

func TestTransformRejectsUnknownModes(t *testing.T) {
	_, err := Transform(sampleRecords(), Options{ViewMode: "pivot"})
	assert.Error(t, err)

	_, err = Transform(sampleRecords(), Options{ViewMode: "default", Agg: "median"})
	assert.Error(t, err)
}

func TestFetchSessionsFlattensNotionPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "leaderboard", r.URL.Query().Get("name"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"results": [
				{"properties": {
					"User": {"title": [{"plain_text": "alice"}]},
					"Count": {"number": 5},
					"Duration": {"number": 120},
					"Start Timestamp": {"date": {"start": "2025-06-01T10:00:00Z"}},
					"End Timestamp": {"date": {"start": "2025-06-01T11:00:00Z"}}
				}},
				{"properties": {}}
			]
		}`))
	}))
	defer server.Close()

	cfg := &config.AnalyticsConfig{BaseURL: server.URL, Endpoint: "/database", Timeout: 5 * time.Second}
	c := NewClient(cfg)

	records, err := c.FetchSessions(context.Background(), map[string][]string{"name": {"leaderboard"}})
	require.NoError(t, err)
	require.Len(t, records, 1, "pages without properties are skipped")
	assert.Equal(t, "alice", *records[0].User)
	assert.Equal(t, float64(5), *records[0].Count)
	require.NotNil(t, records[0].Begin)
	assert.Equal(t, 10, records[0].Begin.Hour())
}
