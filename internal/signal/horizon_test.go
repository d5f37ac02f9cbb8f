package signal

import (
	"errors"
	"math"
	"testing"
	"time"

	"papertrade/internal/model"
)

var seriesStart = time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)

func series(closes ...float64) []model.PricePoint {
	out := make([]model.PricePoint, len(closes))
	for i, c := range closes {
		out[i] = model.PricePoint{
			TS:    seriesStart.Add(time.Duration(i) * time.Minute),
			Open:  c,
			High:  c,
			Low:   c,
			Close: c,
		}
	}
	return out
}

func rampSeries(start, step float64, n int) []model.PricePoint {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + step*float64(i)
	}
	return series(closes...)
}

func flatSeries(price float64, n int) []model.PricePoint {
	return rampSeries(price, 0, n)
}

// rsi25Series has 14 deltas: two gains of 1.5 and twelve losses of 0.75,
// so RS = 3/9 and RSI(14) = 25.
func rsi25Series() []model.PricePoint {
	closes := []float64{100, 101.5, 103}
	for i := 0; i < 12; i++ {
		closes = append(closes, closes[len(closes)-1]-0.75)
	}
	return series(closes...)
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestIntraday_RSI25IsBuy(t *testing.T) {
	s, err := GenerateHorizonSignal("RELIANCE", model.HorizonIntraday, rsi25Series())
	if err != nil {
		t.Fatal(err)
	}
	if s.Direction != model.DirectionBuy {
		t.Fatalf("direction: got %s, want BUY", s.Direction)
	}
	if s.Confidence < 60 || s.Confidence > 85 {
		t.Errorf("confidence %.2f outside [60,85]", s.Confidence)
	}
	if !near(s.Confidence, 66.25) {
		t.Errorf("confidence: got %.4f, want 66.25", s.Confidence)
	}
	if !near(s.Entry, 94) || !near(s.StopLoss, 94*0.975) || !near(s.Target, 94*1.02) {
		t.Errorf("levels: entry %.4f stop %.4f target %.4f", s.Entry, s.StopLoss, s.Target)
	}
	if !near(s.RiskReward, 0.8) {
		t.Errorf("risk_reward: got %.4f, want 0.8", s.RiskReward)
	}
	if !s.AsOf.Equal(seriesStart.Add(14 * time.Minute)) {
		t.Errorf("as_of: got %v", s.AsOf)
	}
}

func TestIntraday_Overbought_IsSellWithMirroredLevels(t *testing.T) {
	s, err := GenerateHorizonSignal("INFY", model.HorizonIntraday, rampSeries(100, 1, 20))
	if err != nil {
		t.Fatal(err)
	}
	if s.Direction != model.DirectionSell {
		t.Fatalf("direction: got %s, want SELL", s.Direction)
	}
	if !(s.StopLoss > s.Entry && s.Target < s.Entry) {
		t.Errorf("SELL levels: entry %.2f stop %.2f target %.2f", s.Entry, s.StopLoss, s.Target)
	}
	// RSI 100 is 30 past the band: 60 + 37.5 clamps to 85.
	if s.Confidence != 85 {
		t.Errorf("confidence: got %.2f, want 85", s.Confidence)
	}
}

func TestIntraday_NeutralIsHold(t *testing.T) {
	closes := []float64{100}
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			closes = append(closes, closes[len(closes)-1]+1)
		} else {
			closes = append(closes, closes[len(closes)-1]-1)
		}
	}
	s, err := GenerateHorizonSignal("TCS", model.HorizonIntraday, series(closes...))
	if err != nil {
		t.Fatal(err)
	}
	if s.Direction != model.DirectionHold || s.Confidence != 60 {
		t.Errorf("got %s %.2f, want HOLD 60", s.Direction, s.Confidence)
	}
	if s.StopLoss != 0 || s.Target != 0 {
		t.Errorf("HOLD must not carry stop/target: %+v", s)
	}
}

func TestShortTerm_Directions(t *testing.T) {
	tests := []struct {
		name     string
		series   []model.PricePoint
		wantDir  model.Direction
		wantConf float64
	}{
		{"uptrend", rampSeries(100, 1, 40), model.DirectionBuy, 85},
		{"downtrend", rampSeries(200, -1, 40), model.DirectionSell, 85},
		{"flat", flatSeries(100, 40), model.DirectionHold, 65},
		// gap = 10 × 0.01 = 0.1 on ~100: 0.1% → 82 + 3×clamp(-0.9) = 79.3
		{"shallow uptrend", rampSeries(100, 0.01, 40), model.DirectionBuy, 79.3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := GenerateHorizonSignal("WIPRO", model.HorizonShortTerm, tc.series)
			if err != nil {
				t.Fatal(err)
			}
			if s.Direction != tc.wantDir {
				t.Errorf("direction: got %s, want %s", s.Direction, tc.wantDir)
			}
			if math.Abs(s.Confidence-tc.wantConf) > 0.01 {
				t.Errorf("confidence: got %.4f, want %.4f", s.Confidence, tc.wantConf)
			}
		})
	}
}

func TestShortTerm_BuyLevels(t *testing.T) {
	s, err := GenerateHorizonSignal("SBIN", model.HorizonShortTerm, rampSeries(100, 1, 30))
	if err != nil {
		t.Fatal(err)
	}
	if !near(s.StopLoss, s.Entry*0.965) || !near(s.Target, s.Entry*1.08) {
		t.Errorf("levels: entry %.4f stop %.4f target %.4f", s.Entry, s.StopLoss, s.Target)
	}
}

func TestLongTerm_Directions(t *testing.T) {
	tests := []struct {
		name    string
		series  []model.PricePoint
		wantDir model.Direction
	}{
		{"rising at minimum history", rampSeries(100, 0.5, 60), model.DirectionBuy},
		{"rising full window", rampSeries(100, 0.5, 250), model.DirectionBuy},
		{"falling", rampSeries(300, -0.5, 120), model.DirectionSell},
		{"flat", flatSeries(100, 120), model.DirectionHold},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := GenerateHorizonSignal("ITC", model.HorizonLongTerm, tc.series)
			if err != nil {
				t.Fatal(err)
			}
			if s.Direction != tc.wantDir {
				t.Fatalf("direction: got %s, want %s", s.Direction, tc.wantDir)
			}
			switch tc.wantDir {
			case model.DirectionHold:
				if s.Confidence != 70 {
					t.Errorf("HOLD confidence: got %.2f, want 70", s.Confidence)
				}
			default:
				if s.Confidence != 81 {
					t.Errorf("confidence: got %.2f, want 81", s.Confidence)
				}
				if !near(s.RiskReward, 2) {
					t.Errorf("risk_reward: got %.4f, want 2", s.RiskReward)
				}
			}
		})
	}
}

func TestGenerators_InsufficientData(t *testing.T) {
	tests := []struct {
		horizon model.Horizon
		have    int
		need    int
	}{
		{model.HorizonIntraday, 14, 15},
		{model.HorizonShortTerm, 29, 30},
		{model.HorizonLongTerm, 59, 60},
	}
	for _, tc := range tests {
		t.Run(string(tc.horizon), func(t *testing.T) {
			_, err := GenerateHorizonSignal("HDFC", tc.horizon, rampSeries(100, 1, tc.have))
			if !errors.Is(err, model.ErrInsufficientData) {
				t.Fatalf("expected ErrInsufficientData, got %v", err)
			}
			var ide *model.InsufficientDataError
			if !errors.As(err, &ide) || ide.Need != tc.need || ide.Have != tc.have {
				t.Errorf("unexpected detail: %+v", ide)
			}

			if _, err := GenerateHorizonSignal("HDFC", tc.horizon, rampSeries(100, 1, tc.need)); err != nil {
				t.Errorf("%d points should be enough: %v", tc.need, err)
			}
		})
	}
}

func TestGenerateHorizonSignal_UnknownHorizon(t *testing.T) {
	if _, err := GenerateHorizonSignal("TCS", model.Horizon("weekly"), flatSeries(100, 300)); err == nil {
		t.Fatal("expected error for unknown horizon")
	}
}

func TestParams_Validate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	p := DefaultParams()
	p.FastWindow = p.SlowWindow
	if err := p.Validate(); err == nil {
		t.Error("expected error when fast window is not shorter than slow")
	}
	p = DefaultParams()
	p.Oversold, p.Overbought = 70, 30
	if err := p.Validate(); err == nil {
		t.Error("expected error for inverted RSI band")
	}
}
