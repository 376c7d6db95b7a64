package wheel

// Draw picks a prize for r in [0, 1) by cumulative weight. Inactive prizes and
// non-positive weights never win. It returns nil when nothing can win.
func Draw(prizes []*Prize, r float64) *Prize {
	var total float64
	for _, p := range prizes {
		if eligible(p) {
			total += p.Probability
		}
	}
	if total <= 0 {
		return nil
	}

	target := r * total
	var last *Prize
	var acc float64
	for _, p := range prizes {
		if !eligible(p) {
			continue
		}
		acc += p.Probability
		last = p
		if target < acc {
			return p
		}
	}
	// float rounding can leave target just past the final bound
	return last
}

func eligible(p *Prize) bool {
	return p != nil && p.Active && p.Probability > 0
}
