package engine

import "sort"

// noEvidenceConfidence is reported when retrieval returns nothing: the
// engine has no signal either way.
const noEvidenceConfidence = 0.5

// topWeights weight the best similarities highest. Truncated and
// renormalized when fewer results are available.
var topWeights = [3]float64{0.6, 0.3, 0.1}

// Confidence maps the retrieval distances of a result set to an answer
// confidence in [0.01, 1.0]. The scale is user-visible, so the shape of
// the mapping is deliberately fixed:
//
//   - distances already in [0, 1] are treated as cosine distances and
//     inverted directly; anything else is min-max normalized first
//   - the top 3 similarities are combined with fixed descending weights
//   - the weighted score is rescaled piecewise so mid-range retrieval
//     quality lands in a moderate band instead of clustering near 0.5
//
// A confidence of exactly 0 never occurs; it is reserved for "the engine
// did not run".
func Confidence(distances []float64) float64 {
	if len(distances) == 0 {
		return noEvidenceConfidence
	}

	similarities := toSimilarities(distances)
	sort.Sort(sort.Reverse(sort.Float64Slice(similarities)))
	if len(similarities) > len(topWeights) {
		similarities = similarities[:len(topWeights)]
	}

	var weightSum float64
	for i := range similarities {
		weightSum += topWeights[i]
	}
	var raw float64
	for i, s := range similarities {
		raw += s * topWeights[i] / weightSum
	}

	c := rescale(raw)
	return min(1.0, max(0.01, c))
}

// toSimilarities converts distances to similarities in [0, 1], higher
// meaning closer.
func toSimilarities(distances []float64) []float64 {
	lo, hi := distances[0], distances[0]
	for _, d := range distances[1:] {
		lo = min(lo, d)
		hi = max(hi, d)
	}

	sims := make([]float64, len(distances))
	if lo >= 0 && hi <= 1 {
		// Cosine distance: smaller is better, invert directly.
		for i, d := range distances {
			sims[i] = 1 - d
		}
		return sims
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	for i, d := range distances {
		sims[i] = 1 - (d-lo)/span
	}
	return sims
}

// rescale stretches the weighted score so the output bands read naturally:
// very low stays very low, the low-mid range is lifted, the mid-high range
// is spread toward 1.
func rescale(raw float64) float64 {
	switch {
	case raw < 0.2:
		return raw * 0.5
	case raw < 0.5:
		return 0.2 + (raw-0.2)*0.7
	default:
		return 0.41 + (raw-0.5)*1.18
	}
}
