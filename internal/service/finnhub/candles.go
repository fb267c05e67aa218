package finnhub

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"FinBars/internal/domain/models"
	drepo "FinBars/internal/domain/repository"
	pkghttp "FinBars/pkg/http"
	xlogger "FinBars/pkg/logger"
)

// CandleSource reads historical bars from the Finnhub REST API and hands
// them to the pipeline as ticks.
type CandleSource struct {
	baseURL    string
	apiKey     string
	resolution string
	timeout    time.Duration
	log        *xlogger.Logger
}

// NewCandleSource builds a REST tick source at the given base timeframe.
func NewCandleSource(baseURL, apiKey string, tf drepo.Timeframe, timeout time.Duration, log *xlogger.Logger) (*CandleSource, error) {
	res, err := tf.FinnhubResolution()
	if err != nil {
		return nil, err
	}
	return &CandleSource{baseURL: baseURL, apiKey: apiKey, resolution: res, timeout: timeout, log: log}, nil
}

var _ drepo.TickSource = (*CandleSource)(nil)

func (s *CandleSource) Name() string { return "finnhub" }

// Open starts a session with its own HTTP client.
func (s *CandleSource) Open(_ context.Context) (drepo.TickSession, error) {
	client := pkghttp.NewClient(
		pkghttp.WithTimeout(s.timeout),
		pkghttp.WithUserAgent("finbars"),
	)
	return &candleSession{src: s, client: client}, nil
}

type candleSession struct {
	src    *CandleSource
	client *pkghttp.Client
	closed bool
}

type candleResponse struct {
	Status string    `json:"s"`
	T      []int64   `json:"t"`
	O      []float64 `json:"o"`
	H      []float64 `json:"h"`
	L      []float64 `json:"l"`
	C      []float64 `json:"c"`
	V      []float64 `json:"v"`
}

// Ticks fetches bars in [from, to). Finnhub's range is inclusive and in
// seconds, so rows at or past to are dropped.
func (s *candleSession) Ticks(ctx context.Context, symbol string, from, to time.Time) ([]models.Tick, error) {
	if s.closed {
		return nil, errors.New("finnhub session closed")
	}
	start := time.Now()
	var resp candleResponse
	err := s.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    s.src.baseURL + "/stock/candle",
		Headers: map[string]string{
			"X-Finnhub-Token": s.src.apiKey,
		},
		QueryParams: map[string][]string{
			"symbol":     {symbol},
			"resolution": {s.src.resolution},
			"from":       {strconv.FormatInt(from.Unix(), 10)},
			"to":         {strconv.FormatInt(to.Unix(), 10)},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("finnhub candles %s: %w", symbol, err)
	}

	ticks, err := resp.ticks(to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("finnhub candles %s: %w", symbol, err)
	}
	s.src.log.Debug("finnhub candles loaded",
		xlogger.String("symbol", symbol),
		xlogger.String("resolution", s.src.resolution),
		xlogger.Int("rows", len(ticks)),
		xlogger.Duration("duration_ms", time.Since(start)),
	)
	return ticks, nil
}

func (r candleResponse) ticks(toMs int64) ([]models.Tick, error) {
	switch r.Status {
	case "no_data":
		return nil, nil
	case "ok":
	default:
		return nil, fmt.Errorf("unexpected status %q", r.Status)
	}
	n := len(r.T)
	if len(r.O) != n || len(r.H) != n || len(r.L) != n || len(r.C) != n || len(r.V) != n {
		return nil, errors.New("ragged candle arrays")
	}
	out := make([]models.Tick, 0, n)
	for i := 0; i < n; i++ {
		ms := r.T[i] * 1000
		if ms >= toMs {
			continue
		}
		out = append(out, models.Tick{
			TimestampMs: ms,
			Open:        r.O[i],
			High:        r.H[i],
			Low:         r.L[i],
			Close:       r.C[i],
			Volume:      r.V[i],
		})
	}
	return out, nil
}

func (s *candleSession) Close() error {
	s.closed = true
	return nil
}
