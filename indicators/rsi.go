package indicators

// RSI calculates the Relative Strength Index with Wilder smoothing. The
// first value is available at index period, once period price changes
// have been seen. A window without losses reads 100, one without any
// movement reads 50.
func RSI(values []float64, period int) ([]float64, error) {
	if err := checkPeriod(period, len(values)); err != nil {
		return nil, err
	}
	out := nans(len(values))
	if len(values) <= period {
		return out, nil
	}

	var up, down float64
	for i := 1; i <= period; i++ {
		if d := values[i] - values[i-1]; d > 0 {
			up += d
		} else {
			down -= d
		}
	}
	up /= float64(period)
	down /= float64(period)
	out[period] = rsi(up, down)

	p := float64(period)
	for i := period + 1; i < len(values); i++ {
		var gain, loss float64
		if d := values[i] - values[i-1]; d > 0 {
			gain = d
		} else {
			loss = -d
		}
		up = (up*(p-1) + gain) / p
		down = (down*(p-1) + loss) / p
		out[i] = rsi(up, down)
	}
	return out, nil
}

func rsi(up, down float64) float64 {
	switch {
	case down == 0 && up == 0:
		return 50
	case down == 0:
		return 100
	}
	return 100 - 100/(1+up/down)
}
