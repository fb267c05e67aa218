package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"FinBars/internal/domain/models"
	drepo "FinBars/internal/domain/repository"
	xlogger "FinBars/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	testCases := []struct {
		name    string
		frame   string
		want    []models.SymbolTick
		wantErr bool
	}{
		{
			name:  "trade",
			frame: `{"type":"trade","data":[{"s":"AAPL","p":190.5,"v":3,"t":1700000000123},{"s":"","p":1,"v":1,"t":1}]}`,
			want:  []models.SymbolTick{{Symbol: "AAPL", Tick: models.TradeTick(1700000000123, 190.5, 3)}},
		},
		{name: "ping", frame: `{"type":"ping"}`},
		{name: "error", frame: `{"type":"error","msg":"Invalid API key"}`, wantErr: true},
		{name: "garbage", frame: `not json`, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeFrame([]byte(tc.frame))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCandleSource_Ticks(t *testing.T) {
	var gotQuery, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/stock/candle", r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotToken = r.Header.Get("X-Finnhub-Token")
		if r.URL.Query().Get("symbol") == "NONE" {
			_, _ = w.Write([]byte(`{"s":"no_data"}`))
			return
		}
		_, _ = w.Write([]byte(`{"s":"ok","t":[1700000000,1700000060,1700000120],
			"o":[1,2,3],"h":[2,3,4],"l":[0.5,1.5,2.5],"c":[1.5,2.5,3.5],"v":[10,20,30]}`))
	}))
	defer srv.Close()

	src, err := NewCandleSource(srv.URL, "secret", drepo.TF1m, time.Second, xlogger.Nop())
	require.NoError(t, err)
	sess, err := src.Open(context.Background())
	require.NoError(t, err)
	defer sess.Close()

	from := time.Unix(1700000000, 0)
	to := time.Unix(1700000120, 0)
	ticks, err := sess.Ticks(context.Background(), "AAPL", from, to)
	require.NoError(t, err)

	assert.Equal(t, "secret", gotToken)
	assert.Contains(t, gotQuery, "resolution=1")
	assert.Contains(t, gotQuery, "from=1700000000")
	require.Len(t, ticks, 2, "bar at the exclusive end is dropped")
	assert.Equal(t, models.Tick{TimestampMs: 1700000060000, Open: 2, High: 3, Low: 1.5, Close: 2.5, Volume: 20}, ticks[1])

	ticks, err = sess.Ticks(context.Background(), "NONE", from, to)
	require.NoError(t, err)
	assert.Empty(t, ticks)
}

func TestCandleSource_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "LIMIT":
			w.WriteHeader(http.StatusTooManyRequests)
		case "RAGGED":
			_, _ = w.Write([]byte(`{"s":"ok","t":[1,2],"o":[1],"h":[1],"l":[1],"c":[1],"v":[1]}`))
		}
	}))
	defer srv.Close()

	_, err := NewCandleSource(srv.URL, "k", drepo.Timeframe("7m"), time.Second, xlogger.Nop())
	require.Error(t, err)

	src, err := NewCandleSource(srv.URL, "k", drepo.TF1d, time.Second, xlogger.Nop())
	require.NoError(t, err)
	sess, err := src.Open(context.Background())
	require.NoError(t, err)

	_, err = sess.Ticks(context.Background(), "LIMIT", time.Unix(0, 0), time.Unix(10, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = sess.Ticks(context.Background(), "RAGGED", time.Unix(0, 0), time.Unix(10, 0))
	require.ErrorContains(t, err, "ragged")

	require.NoError(t, sess.Close())
	_, err = sess.Ticks(context.Background(), "AAPL", time.Unix(0, 0), time.Unix(10, 0))
	require.Error(t, err)
}

func TestStream_ReadsTrades(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub map[string]string
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub["symbol"]
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"trade","data":[{"s":"AAPL","p":190,"v":2,"t":1700000000000}]}`))
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := NewStream("key", wsURL, []string{"AAPL"}, time.Millisecond, time.Hour, xlogger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Subscribe(ctx))
	assert.True(t, s.IsConnected())
	assert.Equal(t, "AAPL", <-subscribed)

	ticks, errs := s.Read(ctx)
	select {
	case tick := <-ticks:
		assert.Equal(t, models.SymbolTick{Symbol: "AAPL", Tick: models.TradeTick(1700000000000, 190, 2)}, tick)
	case <-ctx.Done():
		t.Fatal("no tick received")
	}

	// server hangs up
	select {
	case err := <-errs:
		require.Error(t, err)
	case <-ctx.Done():
		t.Fatal("no read error after hangup")
	}
	assert.False(t, s.IsConnected())
	require.NoError(t, s.Close())
}
