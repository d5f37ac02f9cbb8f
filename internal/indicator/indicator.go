// Package indicator provides stateless technical indicator calculations over
// ordered close-price series.
//
// Every function takes the full series and returns a single value for the
// last bar. A series shorter than the indicator needs fails with a
// *model.InsufficientDataError; nothing is padded or guessed.
package indicator

import (
	"fmt"

	"papertrade/internal/model"
)

// Closes extracts close prices from a timestamp-ordered series.
func Closes(series []model.PricePoint) []float64 {
	out := make([]float64, len(series))
	for i := range series {
		out[i] = series[i].Close
	}
	return out
}

func insufficient(name string, window, need, have int) error {
	return &model.InsufficientDataError{
		Indicator: fmt.Sprintf("%s_%d", name, window),
		Need:      need,
		Have:      have,
	}
}

func checkWindow(name string, window int) error {
	if window <= 0 {
		return fmt.Errorf("%s: window must be positive, got %d", name, window)
	}
	return nil
}
