package indicator

// SMA returns the arithmetic mean of the last window closes.
func SMA(closes []float64, window int) (float64, error) {
	if err := checkWindow("SMA", window); err != nil {
		return 0, err
	}
	if len(closes) < window {
		return 0, insufficient("SMA", window, window, len(closes))
	}
	sum := 0.0
	for _, c := range closes[len(closes)-window:] {
		sum += c
	}
	return sum / float64(window), nil
}

// SMAAt returns the SMA of the window ending offset bars before the last one.
// SMAAt(closes, w, 0) equals SMA(closes, w).
func SMAAt(closes []float64, window, offset int) (float64, error) {
	if offset < 0 || offset > len(closes) {
		return 0, insufficient("SMA", window, window+offset, len(closes))
	}
	return SMA(closes[:len(closes)-offset], window)
}
