package bench

// Jain's fairness index of the shares in values: 1 when all are equal, 1/n
// when one value takes everything. Zero for no values or an all-zero input.
func JainIndex(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	if len(values) == 0 || total == 0 {
		return 0
	}

	var s, s2 float64
	for _, v := range values {
		share := v / total
		s += share
		s2 += share * share
	}
	return (s * s) / (float64(len(values)) * s2)
}
