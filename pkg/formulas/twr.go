package formulas

// LinkedReturn computes the time-weighted return across consecutive
// valuations by geometrically linking period returns.
//
// TWR Formula:
//   TWR = Π (V_i / V_{i-1}) - 1
//
// Args:
//   values: Portfolio valuations in chronological order
//
// Returns:
//   Linked return as a decimal (0.12 = +12%) or nil when fewer than two
//   valuations exist or any valuation is non-positive
func LinkedReturn(values []float64) *float64 {
	if len(values) < 2 {
		return nil
	}

	linked := 1.0
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 || values[i] <= 0 {
			return nil
		}
		linked *= values[i] / values[i-1]
	}

	twr := linked - 1
	return &twr
}
