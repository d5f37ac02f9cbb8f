package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"papertrade/internal/model"
)

func TestFeed_BarsReadBackInOrder(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	written := make([]model.PricePoint, 5)
	for i := range written {
		c := 100 + float64(i)
		written[i] = model.PricePoint{TS: t0.Add(time.Duration(i) * 5 * time.Minute), Open: c - 1, High: c + 1, Low: c - 2, Close: c, Volume: int64(10 * i)}
	}

	// XREVRANGE hands back what XADD wrote, newest first.
	msgs := make([]goredis.XMessage, 0, len(written))
	for i := len(written) - 1; i >= 0; i-- {
		msgs = append(msgs, goredis.XMessage{ID: fmt.Sprintf("%d-0", i+1), Values: barValues(written[i])})
	}

	got := decodeBars(msgs, quiet())
	if len(got) != len(written) {
		t.Fatalf("got %d bars, want %d", len(got), len(written))
	}
	for i := range written {
		w, g := written[i], got[i]
		if !g.TS.Equal(w.TS) || g.Open != w.Open || g.High != w.High || g.Low != w.Low || g.Close != w.Close || g.Volume != w.Volume {
			t.Errorf("bar %d: got %+v, want %+v", i, g, w)
		}
	}
}

func TestFeed_QuoteFieldsReadBack(t *testing.T) {
	ts := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	// HSET takes alternating field/value pairs; HGETALL returns them as a map.
	pairs := quoteFields(2851.35, ts)
	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		fields[pairs[i].(string)] = pairs[i+1].(string)
	}

	q, err := parseQuote("RELIANCE", fields)
	if err != nil {
		t.Fatal(err)
	}
	if q.Symbol != "RELIANCE" || q.Price != 2851.35 || !q.TS.Equal(ts) {
		t.Errorf("quote: %+v", q)
	}
}

func TestParseQuote_Rejects(t *testing.T) {
	cases := map[string]map[string]string{
		"missing price": {"ts": "1"},
		"garbage price": {"price": "abc"},
		"zero price":    {"price": "0"},
	}
	for name, fields := range cases {
		if _, err := parseQuote("X", fields); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	q, err := parseQuote("X", map[string]string{"price": "10"})
	if err != nil || !q.TS.IsZero() {
		t.Errorf("missing ts: %+v %v", q, err)
	}
}

func TestFeed_SymbolKeys(t *testing.T) {
	keys := symbolKeys("TCS")
	want := []string{"quote:TCS", "history:intraday:TCS", "history:shortterm:TCS", "history:longterm:TCS"}
	if len(keys) != len(want) {
		t.Fatalf("keys: %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d: %s, want %s", i, keys[i], want[i])
		}
	}
}

func TestFeed_UnreachableReturnsErrors(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	f := NewFeed(client, quiet())
	ctx := context.Background()
	now := time.Now()

	if err := f.PutQuote(ctx, model.Quote{Symbol: "TCS", Price: 1, TS: now}); err == nil {
		t.Error("PutQuote: expected error")
	}
	if err := f.AppendBar(ctx, "TCS", model.HorizonIntraday, model.PricePoint{TS: now, Close: 1}); err == nil {
		t.Error("AppendBar: expected error")
	}
	if err := f.Reset(ctx, "TCS"); err == nil {
		t.Error("Reset: expected error")
	}
}
