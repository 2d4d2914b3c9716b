package vibrator

// splitIndex returns how many of the first limit segments to send in one
// composition when more segments follow. endAmplitude(i) is the amplitude
// segment i ends at.
//
// The cut goes right after the first segment that ends at zero amplitude.
// Without one, it goes after the segment ending at the lowest amplitude,
// preferring the later segment on ties, which degrades to a full-size cut
// when the last segment in the window is lowest.
func splitIndex(limit int, endAmplitude func(i int) float64) int {
	if limit <= 1 {
		return 1
	}
	for i := 0; i < limit; i++ {
		if endAmplitude(i) == 0 {
			return i + 1
		}
	}
	best := limit - 1
	for i := limit - 2; i >= 0; i-- {
		if endAmplitude(i) < endAmplitude(best) {
			best = i
		}
	}
	return best + 1
}
