package indicator

// RSI returns the relative strength index of closes over period.
// Callers drop the in-progress bar before calling.
func RSI(closes []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(closes) < period+1 {
		return 0, ErrInsufficientData
	}

	up := make([]float64, len(closes)-1)
	down := make([]float64, len(closes)-1)
	for i := 0; i < len(closes)-1; i++ {
		gap := closes[i+1] - closes[i]
		if gap > 0 {
			up[i] = gap
		} else {
			down[i] = -gap
		}
	}

	au := EMA(up, period)
	ad := EMA(down, period)
	if ad == 0 {
		return 100, nil
	}

	return 100 - 100/(1+au/ad), nil
}
