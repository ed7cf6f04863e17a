package capture

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sampleRecords() []NetworkRecord {
	return []NetworkRecord{
		{
			Request: RequestInfo{
				URL:     "https://api.example.com/v1/items",
				Method:  "GET",
				Headers: map[string]string{"Accept": "application/json"},
			},
			Response: &ResponseInfo{
				Status:  200,
				Headers: map[string]string{"Content-Type": "application/json"},
				Timing:  map[string]float64{"receiveHeadersEnd": 12.5},
			},
			Observed: time.Date(2025, 6, 1, 12, 0, 1, 0, time.UTC),
		},
		{
			Request: RequestInfo{
				URL:      "https://api.example.com/v1/items",
				Method:   "POST",
				PostData: `{"name":"widget"}`,
			},
			Response: &ResponseInfo{Status: 201},
			Observed: time.Date(2025, 6, 1, 12, 0, 2, 0, time.UTC),
		},
		{
			Request: RequestInfo{URL: "https://cdn.example.com/app.js", Method: "GET"},
		},
	}
}

func TestEncodeJSONLRoundTrip(t *testing.T) {
	t.Parallel()

	records := sampleRecords()
	capturedAt := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)

	payload, err := EncodeJSONL(records, capturedAt)
	require.NoError(t, err)

	decoded, err := DecodeJSONL(payload)
	require.NoError(t, err)
	require.Len(t, decoded, len(records))
	for i, rec := range records {
		require.Equal(t, rec.Request, decoded[i].Request, "record %d request", i)
		require.Equal(t, rec.Response, decoded[i].Response, "record %d response", i)
	}
	// A record without its own observation timestamp inherits the run's.
	require.Equal(t, capturedAt, decoded[2].Observed)
}

func TestEncodeJSONLOneObjectPerLine(t *testing.T) {
	t.Parallel()

	payload, err := EncodeJSONL(sampleRecords(), time.Now())
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimRight(payload, "\n"), []byte("\n"))
	require.Len(t, lines, 3)
	for i, line := range lines {
		require.True(t, json.Valid(line), "line %d must be a complete JSON object", i)
	}
}

func TestEncodeJSONLDeterministic(t *testing.T) {
	t.Parallel()

	capturedAt := time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC)
	first, err := EncodeJSONL(sampleRecords(), capturedAt)
	require.NoError(t, err)
	second, err := EncodeJSONL(sampleRecords(), capturedAt)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEncodeJSONLTimestampISO8601UTC(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	records := []NetworkRecord{
		{Request: RequestInfo{URL: "https://example.com", Method: "GET"},
			Observed: time.Date(2025, 6, 1, 8, 0, 0, 0, loc)},
	}
	payload, err := EncodeJSONL(records, time.Now())
	require.NoError(t, err)

	var line struct {
		TS string `json:"ts"`
	}
	require.NoError(t, json.Unmarshal(bytes.TrimRight(payload, "\n"), &line))
	require.Equal(t, "2025-06-01T12:00:00Z", line.TS)
}

func TestEncodeJSONLEmptyInput(t *testing.T) {
	t.Parallel()

	payload, err := EncodeJSONL(nil, time.Now())
	require.NoError(t, err)
	require.Empty(t, payload)

	decoded, err := DecodeJSONL(payload)
	require.NoError(t, err)
	require.Empty(t, decoded)
}
