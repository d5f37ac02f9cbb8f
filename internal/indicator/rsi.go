package indicator

// DefaultRSIWindow is the conventional Wilder period.
const DefaultRSIWindow = 14

// RSI returns the Relative Strength Index of the last bar using Wilder's method:
// the first window deltas seed the averages with a simple mean, every later
// delta is folded in with Wilder smoothing. RSI is 100 when the average loss is 0.
func RSI(closes []float64, window int) (float64, error) {
	if err := checkWindow("RSI", window); err != nil {
		return 0, err
	}
	if len(closes) < window+1 {
		return 0, insufficient("RSI", window, window+1, len(closes))
	}

	w := wilder{period: window}
	for _, c := range closes {
		w.update(c)
	}
	return w.value(), nil
}

// wilder accumulates average gain/loss one close at a time. O(1) per close.
type wilder struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
}

func (w *wilder) update(price float64) {
	w.count++
	if w.count == 1 {
		w.prevClose = price
		return
	}

	delta := price - w.prevClose
	w.prevClose = price

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if w.count <= w.period+1 {
		// Seed phase: plain sums, divided once the window is full.
		w.avgGain += gain
		w.avgLoss += loss
		if w.count == w.period+1 {
			w.avgGain /= float64(w.period)
			w.avgLoss /= float64(w.period)
		}
		return
	}

	p := float64(w.period)
	w.avgGain = (w.avgGain*(p-1) + gain) / p
	w.avgLoss = (w.avgLoss*(p-1) + loss) / p
}

func (w *wilder) value() float64 {
	if w.avgLoss == 0 {
		return 100.0
	}
	rs := w.avgGain / w.avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
