package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryCmd_Defaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/marketdata/AAPL/pricehistory", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "day", q.Get("periodType"))
		assert.Equal(t, "10", q.Get("period"))
		assert.Equal(t, "minute", q.Get("frequencyType"))
		assert.Equal(t, "1", q.Get("frequency"))
		assert.Equal(t, "false", q.Get("needExtendedHoursData"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"symbol": "AAPL",
			"empty": false,
			"candles": [
				{"open": 126.0, "high": 127.5, "low": 125.8, "close": 127.1, "volume": 1200000, "datetime": 1622210400000}
			]
		}`))
	}))
	defer server.Close()

	cmd := newHistoryCmd(&historyOptions{client: testAPIClient(server.URL)})

	out, err := execute(t, cmd, "AAPL")
	require.NoError(t, err)
	assert.Contains(t, out, "2021-05-28 14:00")
	assert.Contains(t, out, "126.00")
	assert.Contains(t, out, "127.50")
	assert.Contains(t, out, "127.10")
	assert.Contains(t, out, "1,200,000")
}

func TestHistoryCmd_DateRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "year", q.Get("periodType"))
		assert.Equal(t, "weekly", q.Get("frequencyType"))
		assert.Empty(t, q.Get("period"))
		assert.Equal(t, "1609459200000", q.Get("startDate"))
		assert.Equal(t, "1622505600000", q.Get("endDate"))
		assert.Equal(t, "true", q.Get("needExtendedHoursData"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol": "AAPL", "empty": true, "candles": []}`))
	}))
	defer server.Close()

	cmd := newHistoryCmd(&historyOptions{client: testAPIClient(server.URL)})

	out, err := execute(t, cmd, "AAPL",
		"--period-type", "year", "--frequency-type", "weekly",
		"--start", "2021-01-01", "--end", "2021-06-01", "--extended")
	require.NoError(t, err)
	assert.Contains(t, out, "No price history found")
}

func TestHistoryCmd_JSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"symbol": "AAPL", "candles": [{"open": 1, "high": 2, "low": 0.5, "close": 1.5, "volume": 10, "datetime": 1622210400000}]}`))
	}))
	defer server.Close()

	cmd := newHistoryCmd(&historyOptions{client: testAPIClient(server.URL), jsonMode: true})

	out, err := execute(t, cmd, "AAPL")
	require.NoError(t, err)

	var rows []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "1.50", rows[0]["Close"])
}

func TestHistoryCmd_InvalidOptions(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "bad period type",
			args:    []string{"AAPL", "--period-type", "week"},
			wantErr: "invalid period type",
		},
		{
			name:    "period not allowed",
			args:    []string{"AAPL", "--period", "7"},
			wantErr: "does not allow period 7",
		},
		{
			name:    "frequency type not allowed",
			args:    []string{"AAPL", "--frequency-type", "daily"},
			wantErr: "does not allow frequency type",
		},
		{
			name:    "bad start date",
			args:    []string{"AAPL", "--start", "yesterday", "--end", "2021-06-01"},
			wantErr: "invalid --start date",
		},
		{
			name:    "end before start",
			args:    []string{"AAPL", "--period-type", "month", "--frequency-type", "daily", "--start", "2021-06-01", "--end", "2021-01-01"},
			wantErr: "end date must be after start date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newHistoryCmd(&historyOptions{client: testAPIClient("http://localhost")})
			_, err := execute(t, cmd, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHistoryCmd_RequiresSymbol(t *testing.T) {
	cmd := newHistoryCmd(&historyOptions{client: testAPIClient("http://localhost")})
	_, err := execute(t, cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}
