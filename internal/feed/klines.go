package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/changmen007/ethsim/internal/signal"
)

// klineLimit caps how many candles one poll requests; the Binance API allows
// up to 1000 per call.
const klineLimit = 500

func (f *Feed) runKlines(ctx context.Context, out chan<- signal.Signal) error {
	if f.symbol == "" {
		return fmt.Errorf("kline feed requires a symbol")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	// One request per interval, with a small burst for startup/retries.
	limiter := rate.NewLimiter(rate.Every(f.interval), 2)

	for {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		closes, err := f.fetchKlines(ctx, client)
		if err != nil {
			f.log.Warn().Err(err).Msg("kline poll failed")
			continue
		}
		if len(closes) == 0 {
			continue
		}

		f.window = newPriceWindow(f.window.max)
		for _, px := range closes {
			f.window.push(px)
		}
		last := closes[len(closes)-1]
		if err := f.emit(ctx, out, last, time.Now().UTC()); err != nil {
			return err
		}
	}
}

// fetchKlines pulls recent candles and returns their close prices in
// chronological order. Binance encodes each kline as a mixed-type array with
// the close at index 4.
func (f *Feed) fetchKlines(ctx context.Context, client *http.Client) ([]float64, error) {
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=1h&limit=%d", f.baseURL, f.symbol, klineLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kline request returned %s", resp.Status)
	}

	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	closes := make([]float64, 0, len(raw))
	for _, kline := range raw {
		if len(kline) < 5 {
			continue
		}
		var closeStr string
		if err := json.Unmarshal(kline[4], &closeStr); err != nil {
			continue
		}
		px, err := strconv.ParseFloat(closeStr, 64)
		if err != nil || px <= 0 {
			continue
		}
		closes = append(closes, px)
	}
	return closes, nil
}
