package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"papertrade/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func ramp(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA(3) over first 3: 102, over first 4: 103, over all 5: 104
	prices := []float64{100, 102, 104, 103, 105}
	expected := map[int]float64{3: 102.0, 4: 103.0, 5: 104.0}

	for n, want := range expected {
		got, err := SMA(prices[:n], 3)
		if err != nil {
			t.Fatalf("SMA(3) over %d points: %v", n, err)
		}
		assertClose(t, "SMA(3)", got, want, 1e-9)
	}
}

func TestSMA_InsufficientData(t *testing.T) {
	_, err := SMA([]float64{1, 2}, 3)
	if !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	var ide *model.InsufficientDataError
	if !errors.As(err, &ide) {
		t.Fatalf("expected *InsufficientDataError, got %T", err)
	}
	if ide.Need != 3 || ide.Have != 2 || ide.Indicator != "SMA_3" {
		t.Errorf("unexpected error detail: %+v", ide)
	}
}

func TestSMA_RejectsNonPositiveWindow(t *testing.T) {
	if _, err := SMA([]float64{1, 2, 3}, 0); err == nil {
		t.Fatal("expected error for window 0")
	}
}

func TestSMAAt_Offset(t *testing.T) {
	// 10, 11, ..., 16. SMA(5) ending two bars back = (10+11+12+13+14)/5 = 12
	prices := ramp(10, 1, 7)
	got, err := SMAAt(prices, 5, 2)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "SMAAt", got, 12.0, 1e-9)

	if _, err := SMAAt(prices, 5, 3); !errors.Is(err, model.ErrInsufficientData) {
		t.Errorf("expected insufficient data for offset 3, got %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness (Wilder's Method)
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period5(t *testing.T) {
	// Deltas of the first six prices: +0.34 -0.25 -0.48 +0.72 +0.50
	//   avgGain = 1.56/5 = 0.312, avgLoss = 0.73/5 = 0.146
	//   RSI = 100 - 100/(1+2.13699) = 68.112
	// Then Wilder smoothing:
	//   45.10 → 72.219, 45.42 → 76.658, 45.84 → 81.509
	prices := []float64{44.00, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84}
	expected := map[int]float64{6: 68.112, 7: 72.219, 8: 76.658, 9: 81.509}

	for n, want := range expected {
		got, err := RSI(prices[:n], 5)
		if err != nil {
			t.Fatalf("RSI(5) over %d points: %v", n, err)
		}
		assertClose(t, "RSI(5)", got, want, 0.1)
	}
}

func TestRSI_AllUp_Is100(t *testing.T) {
	got, err := RSI(ramp(100, 1, 20), DefaultRSIWindow)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "RSI all up", got, 100.0, 0.001)
}

func TestRSI_AllDown_Is0(t *testing.T) {
	got, err := RSI(ramp(200, -1, 20), DefaultRSIWindow)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "RSI all down", got, 0.0, 0.001)
}

func TestRSI_Flat_Is100(t *testing.T) {
	// avgLoss == 0 → 100 by convention
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 100
	}
	got, err := RSI(flat, DefaultRSIWindow)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "RSI flat", got, 100.0, 0.001)
}

func TestRSI_InsufficientData(t *testing.T) {
	// window+1 points are required: 14 points is one short.
	_, err := RSI(ramp(100, 1, 14), DefaultRSIWindow)
	if !errors.Is(err, model.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if _, err := RSI(ramp(100, 1, 15), DefaultRSIWindow); err != nil {
		t.Fatalf("15 points should be enough: %v", err)
	}
}

func TestRSI_BoundedRange(t *testing.T) {
	prices := []float64{10, 12, 9, 14, 11, 15, 8, 13, 12, 16, 9, 10, 14, 11, 13, 12, 15}
	got, err := RSI(prices, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got < 0 || got > 100 {
		t.Errorf("RSI out of range: %.4f", got)
	}
}

// ────────────────────────────────────────────────────────────
// Series helpers
// ────────────────────────────────────────────────────────────

func TestCloses_PreservesOrder(t *testing.T) {
	base := time.Date(2026, 1, 5, 9, 15, 0, 0, time.UTC)
	series := []model.PricePoint{
		{TS: base, Close: 101},
		{TS: base.Add(time.Minute), Close: 102.5},
		{TS: base.Add(2 * time.Minute), Close: 99},
	}
	got := Closes(series)
	want := []float64{101, 102.5, 99}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("close %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestIndicators_TrendingUp_Ordering(t *testing.T) {
	// In a steady uptrend the fast SMA sits above the slow SMA and RSI is high.
	prices := ramp(100, 0.5, 60)
	fast, _ := SMA(prices, 10)
	slow, _ := SMA(prices, 30)
	if fast <= slow {
		t.Errorf("uptrend: fast %.4f should exceed slow %.4f", fast, slow)
	}
	rsi, _ := RSI(prices, DefaultRSIWindow)
	if rsi < 70 {
		t.Errorf("uptrend: RSI %.2f should be above 70", rsi)
	}
}
