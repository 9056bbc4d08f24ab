package indicator

import (
	"math"

	"github.com/sungminna/upbit-scalping-bot/internal/domain/model"
)

// ADX returns the Welles Wilder average directional index of candles over period.
// At least 2*period candles are required.
func ADX(candles []model.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	n := len(candles)
	if n < 2*period {
		return 0, ErrInsufficientData
	}

	tr := make([]float64, n)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)

	for i := 1; i < n; i++ {
		cur, prev := candles[i], candles[i-1]

		tr[i] = math.Max(cur.HighPrice-cur.LowPrice,
			math.Max(math.Abs(cur.HighPrice-prev.ClosePrice), math.Abs(cur.LowPrice-prev.ClosePrice)))

		upMove := cur.HighPrice - prev.HighPrice
		downMove := prev.LowPrice - cur.LowPrice
		if upMove > 0 && upMove > downMove {
			plusDM[i] = upMove
		}
		if downMove > 0 && downMove > upMove {
			minusDM[i] = downMove
		}
	}

	p := float64(period)

	// first smoothed value is the plain sum over bars 1..period
	var sTR, sPlus, sMinus float64
	for i := 1; i <= period; i++ {
		sTR += tr[i]
		sPlus += plusDM[i]
		sMinus += minusDM[i]
	}

	dx := make([]float64, n)
	dx[period] = directionalIndex(sTR, sPlus, sMinus)
	for i := period + 1; i < n; i++ {
		sTR = sTR - sTR/p + tr[i]
		sPlus = sPlus - sPlus/p + plusDM[i]
		sMinus = sMinus - sMinus/p + minusDM[i]
		dx[i] = directionalIndex(sTR, sPlus, sMinus)
	}

	var adx float64
	for i := period; i <= 2*period-1; i++ {
		adx += dx[i]
	}
	adx /= p

	for i := 2 * period; i < n; i++ {
		adx = (adx*(p-1) + dx[i]) / p
	}

	return adx, nil
}

func directionalIndex(sTR, sPlus, sMinus float64) float64 {
	if sTR == 0 {
		return 0
	}
	plusDI := 100 * sPlus / sTR
	minusDI := 100 * sMinus / sTR
	if plusDI+minusDI == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
}
