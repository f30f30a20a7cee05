package flux

// Precompensate nudges intervals that follow a short one, to counter
// the peak shift that crowded flux transitions suffer on the medium.
// An interval whose predecessor is shorter than thresholdTicks is
// shortened by amountTicks if it is longer than that predecessor, and
// lengthened by amountTicks otherwise; every other interval is copied
// unchanged. A result of zero is raised to one tick.
//
// Returns a new Fluxmap; fm is left unmodified.
func Precompensate(fm *Fluxmap, thresholdTicks, amountTicks uint32) *Fluxmap {
	intervals := fm.Intervals()
	out := New()
	for i, ticks := range intervals {
		adjusted := ticks
		if i > 0 {
			prev := intervals[i-1]
			if prev < thresholdTicks && ticks > prev {
				adjusted = ticks - amountTicks
			} else if prev > 0 && prev < thresholdTicks {
				adjusted = ticks + amountTicks
			}
		}
		if adjusted == 0 {
			adjusted = 1
		}
		out.AppendInterval(adjusted)
	}
	return out
}
