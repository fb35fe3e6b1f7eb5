package indicators

import "math"

// ADX calculates Wilder's Average Directional Index (trend strength).
//
// Smoothed TR, +DM and -DM are seeded with the average of the first period
// samples. DX is then produced from index period+1 and ADX is seeded with
// the average of the first period DX values, so the first ADX lands at
// index 2*period.
func ADX(high, low, close []float64, period int) ([]float64, error) {
	if err := checkHLC(high, low, close); err != nil {
		return nil, err
	}
	if err := checkPeriod(period, len(close)); err != nil {
		return nil, err
	}
	out := nans(len(close))

	p := float64(period)
	var tr, pdm, mdm, adx, dxSum float64
	dxCount := 0
	for i := 1; i < len(close); i++ {
		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]

		var up, down float64
		if upMove > downMove && upMove > 0 {
			up = upMove
		}
		if downMove > upMove && downMove > 0 {
			down = downMove
		}
		r := TrueRange(high[i], low[i], close[i-1])

		if i <= period {
			tr += r
			pdm += up
			mdm += down
			if i == period {
				tr /= p
				pdm /= p
				mdm /= p
			}
			continue
		}

		tr = (tr*(p-1) + r) / p
		pdm = (pdm*(p-1) + up) / p
		mdm = (mdm*(p-1) + down) / p

		dx := 0.0
		if tr != 0 {
			pdi := 100 * pdm / tr
			mdi := 100 * mdm / tr
			if den := pdi + mdi; den != 0 {
				dx = 100 * math.Abs(pdi-mdi) / den
			}
		}

		if dxCount < period {
			dxSum += dx
			dxCount++
			if dxCount == period {
				adx = dxSum / p
				out[i] = adx
			}
			continue
		}
		adx = (adx*(p-1) + dx) / p
		out[i] = adx
	}
	return out, nil
}
