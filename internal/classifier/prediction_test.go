package classifier

import (
	"math"
	"testing"
)

func TestSoftmaxSumsToOne(t *testing.T) {
	probs, err := softmax([]float32{1000, 999, -1000, 0})
	if err != nil {
		t.Fatalf("softmax: %v", err)
	}
	var sum float64
	for _, p := range probs {
		if p < 0 || p > 1 || math.IsNaN(p) {
			t.Fatalf("probability out of range: %v", p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("sum = %v", sum)
	}
	if probs[0] <= probs[1] {
		t.Fatalf("expected larger logit to win: %v", probs)
	}
}

func TestSoftmaxRejectsNonFinite(t *testing.T) {
	for _, logits := range [][]float32{
		{1, float32(math.NaN())},
		{float32(math.Inf(1)), 0},
		{},
	} {
		if _, err := softmax(logits); err == nil {
			t.Fatalf("expected error for %v", logits)
		}
	}
}

func TestNewPrediction(t *testing.T) {
	prediction, err := newPrediction(DefaultLabels, []float32{0.1, 2.5, 0.3, -1, 0.0})
	if err != nil {
		t.Fatalf("newPrediction: %v", err)
	}
	if prediction.PredictedClass != "glass" {
		t.Fatalf("expected glass, got %s", prediction.PredictedClass)
	}
	if got := prediction.ClassProbabilities["glass"]; got != prediction.ConfidenceScore {
		t.Fatalf("confidence %v != glass probability %v", prediction.ConfidenceScore, got)
	}

	ranked := prediction.Ranked()
	if len(ranked) != 5 || ranked[0].Label != "glass" || ranked[len(ranked)-1].Label != "metal" {
		t.Fatalf("unexpected ranking: %+v", ranked)
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Probability > ranked[i-1].Probability {
			t.Fatalf("ranking not descending at %d: %+v", i, ranked)
		}
	}
}

func TestNewPredictionTieTakesLowestIndex(t *testing.T) {
	prediction, err := newPrediction(DefaultLabels, []float32{1, 1, 1, 1, 1})
	if err != nil {
		t.Fatalf("newPrediction: %v", err)
	}
	if prediction.PredictedClass != "cardboard" {
		t.Fatalf("expected cardboard on tie, got %s", prediction.PredictedClass)
	}
	if math.Abs(prediction.ConfidenceScore-20) > 1e-9 {
		t.Fatalf("expected 20%%, got %v", prediction.ConfidenceScore)
	}
}

func TestNewPredictionLengthMismatch(t *testing.T) {
	if _, err := newPrediction(DefaultLabels, []float32{1, 2}); err == nil {
		t.Fatal("expected error for mismatched logits")
	}
}
