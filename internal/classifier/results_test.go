package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTop1(t *testing.T) {
	t.Parallel()

	labels := []string{"Pothos", "Monstera"}

	tests := []struct {
		name           string
		probabilities  []float32
		wantLabel      string
		wantConfidence float64
	}{
		{
			name:           "index zero wins",
			probabilities:  []float32{0.95, 0.05},
			wantLabel:      "Pothos",
			wantConfidence: 95.0,
		},
		{
			name:           "index one wins",
			probabilities:  []float32{0.2, 0.8},
			wantLabel:      "Monstera",
			wantConfidence: 80.0,
		},
		{
			name:           "argmax beyond label list is unrecognized",
			probabilities:  []float32{0.1, 0.2, 0.7},
			wantLabel:      LabelUnrecognized,
			wantConfidence: 70.0,
		},
		{
			name:           "empty vector is unrecognized",
			probabilities:  nil,
			wantLabel:      LabelUnrecognized,
			wantConfidence: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := top1(tt.probabilities, labels)
			assert.Equal(t, tt.wantLabel, got.Label)
			assert.InDelta(t, tt.wantConfidence, got.Confidence, 0.0001)
			assert.GreaterOrEqual(t, got.Confidence, 0.0)
			assert.LessOrEqual(t, got.Confidence, 100.0)
		})
	}
}
