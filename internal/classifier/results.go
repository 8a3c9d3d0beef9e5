package classifier

// LabelUnrecognized is reported when the probability vector's argmax falls
// outside the configured label list.
const LabelUnrecognized = "unrecognized"

// Prediction is the classifier's answer for one submission: the top class and
// its confidence expressed as a percentage in [0,100]. Immutable once created.
type Prediction struct {
	Label      string
	Index      int
	Confidence float64
}

// top1 pairs the probability vector with the ordered label list and returns
// the highest scoring entry. An index without a matching label maps to
// LabelUnrecognized rather than failing, the workflow treats that as a
// non-confident result.
func top1(probabilities []float32, labels []string) Prediction {
	best := Prediction{Index: -1, Label: LabelUnrecognized}
	for i, p := range probabilities {
		confidence := float64(p) * 100.0
		if best.Index == -1 || confidence > best.Confidence {
			best.Index = i
			best.Confidence = confidence
		}
	}
	if best.Index >= 0 && best.Index < len(labels) {
		best.Label = labels[best.Index]
	}
	return best
}
