package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"papertrade/internal/model"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestKeys(t *testing.T) {
	if got := QuoteKey("TCS"); got != "quote:TCS" {
		t.Errorf("QuoteKey: %s", got)
	}
	if got := HistoryKey(model.HorizonLongTerm, "TCS"); got != "history:longterm:TCS" {
		t.Errorf("HistoryKey: %s", got)
	}
}

func TestDecodeBars_ReversesAndSkipsMalformed(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	bar := func(i int) string {
		p := model.PricePoint{TS: t0.Add(time.Duration(i) * time.Minute), Close: 100 + float64(i)}
		return string(p.JSON())
	}
	// Newest first, as XREVRANGE returns them.
	msgs := []goredis.XMessage{
		{ID: "3-0", Values: map[string]interface{}{"data": bar(2)}},
		{ID: "2-0", Values: map[string]interface{}{"data": "{not json"}},
		{ID: "1-5", Values: map[string]interface{}{"other": "x"}},
		{ID: "1-0", Values: map[string]interface{}{"data": bar(1)}},
		{ID: "0-1", Values: map[string]interface{}{"data": bar(0)}},
	}

	got := decodeBars(msgs, quiet())
	if len(got) != 3 {
		t.Fatalf("got %d bars, want 3", len(got))
	}
	for i, p := range got {
		if p.Close != 100+float64(i) {
			t.Errorf("bar %d: close %.0f, want oldest first", i, p.Close)
		}
	}
}

func TestDecodeBars_Empty(t *testing.T) {
	if got := decodeBars(nil, quiet()); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func unreachable(t *testing.T) *MarketData {
	t.Helper()
	md := NewMarketData(Config{
		Addr:    "127.0.0.1:1",
		Timeout: 200 * time.Millisecond,
		Breaker: BreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute},
	}, nil, quiet())
	t.Cleanup(func() { md.Close() })
	return md
}

func TestMarketData_UnreachableIsUnavailable(t *testing.T) {
	md := unreachable(t)

	_, err := md.CurrentPrice(context.Background(), "INFY")
	if !errors.Is(err, model.ErrMarketDataUnavailable) {
		t.Fatalf("expected ErrMarketDataUnavailable, got %v", err)
	}
	var mde *model.MarketDataUnavailableError
	if !errors.As(err, &mde) || mde.Symbol != "INFY" {
		t.Errorf("expected typed error for INFY, got %#v", err)
	}
}

func TestMarketData_BreakerOpensOnOutage(t *testing.T) {
	md := unreachable(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		md.History(ctx, "INFY", model.HorizonIntraday)
	}
	if md.Breaker().CurrentState() != StateOpen {
		t.Fatalf("expected Open, got %v", md.Breaker().CurrentState())
	}

	_, err := md.CurrentPrice(ctx, "INFY")
	if !errors.Is(err, ErrCircuitOpen) || !errors.Is(err, model.ErrMarketDataUnavailable) {
		t.Errorf("open breaker should surface as unavailable: %v", err)
	}
}

func TestMarketData_UnknownHorizon(t *testing.T) {
	md := unreachable(t)
	if _, err := md.History(context.Background(), "INFY", model.Horizon("weekly")); err == nil {
		t.Error("expected error for unknown horizon")
	}
	if md.Breaker().CurrentState() != StateClosed {
		t.Error("unknown horizon must not reach Redis")
	}
}

func TestMarketData_LookbackOverride(t *testing.T) {
	md := newMarketData(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"}), Config{
		Lookback: map[model.Horizon]int64{model.HorizonLongTerm: 400, model.HorizonIntraday: 0},
	}, nil, quiet())
	defer md.Close()

	if md.lookback[model.HorizonLongTerm] != 400 {
		t.Errorf("override ignored: %d", md.lookback[model.HorizonLongTerm])
	}
	if md.lookback[model.HorizonIntraday] != DefaultLookback()[model.HorizonIntraday] {
		t.Errorf("zero override must keep the default: %d", md.lookback[model.HorizonIntraday])
	}
	if md.timeout != 2*time.Second {
		t.Errorf("default timeout: %v", md.timeout)
	}
}

func TestMarketData_CancelledCallerDoesNotTrip(t *testing.T) {
	md := unreachable(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		_, err := md.CurrentPrice(ctx, "INFY")
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("call %d: expected context.Canceled, got %v", i, err)
		}
		if errors.Is(err, model.ErrMarketDataUnavailable) {
			t.Fatalf("call %d: caller cancellation reported as an outage", i)
		}
	}
	if md.Breaker().CurrentState() != StateClosed {
		t.Fatalf("expected Closed, got %v", md.Breaker().CurrentState())
	}
}

// silentRedis accepts connections and never replies.
func silentRedis(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				c.Close()
			}
		}()
		for {
			c, err := ln.Accept()
			if err != nil {
				<-done
				return
			}
			conns = append(conns, c)
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		close(done)
	})
	return ln.Addr().String()
}

func hanging(t *testing.T, timeout time.Duration) *MarketData {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{Addr: silentRedis(t), MaxRetries: -1})
	md := newMarketData(client, Config{
		Timeout: timeout,
		Breaker: BreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute},
	}, nil, quiet())
	t.Cleanup(func() { md.Close() })
	return md
}

func TestMarketData_CallerDeadlineDoesNotTrip(t *testing.T) {
	md := hanging(t, 5*time.Second)

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, err := md.History(ctx, "INFY", model.HorizonIntraday)
		cancel()
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("call %d: expected the caller's deadline, got %v", i, err)
		}
	}
	if md.Breaker().CurrentState() != StateClosed {
		t.Fatalf("expected Closed, got %v", md.Breaker().CurrentState())
	}
}

func TestMarketData_OwnTimeoutTrips(t *testing.T) {
	md := hanging(t, 50*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := md.CurrentPrice(ctx, "INFY")
		if !errors.Is(err, model.ErrMarketDataUnavailable) {
			t.Fatalf("call %d: expected ErrMarketDataUnavailable, got %v", i, err)
		}
	}
	if md.Breaker().CurrentState() != StateOpen {
		t.Fatalf("expected Open, got %v", md.Breaker().CurrentState())
	}
}
