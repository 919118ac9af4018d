package classifier

import (
	"fmt"
	"math"
	"sort"
)

// Prediction is the outcome of one classification. Percentages are in [0,100].
type Prediction struct {
	PredictedClass     string             `json:"predicted_class"`
	ConfidenceScore    float64            `json:"confidence_score"`
	ClassProbabilities map[string]float64 `json:"class_probabilities"`
}

// LabelProbability is one entry of Prediction.Ranked.
type LabelProbability struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Ranked returns the class probabilities ordered from most to least likely,
// ties broken by label name.
func (p *Prediction) Ranked() []LabelProbability {
	out := make([]LabelProbability, 0, len(p.ClassProbabilities))
	for label, prob := range p.ClassProbabilities {
		out = append(out, LabelProbability{Label: label, Probability: prob})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// softmax converts logits into probabilities. The max logit is subtracted
// before exponentiation to avoid overflow.
func softmax(logits []float32) ([]float64, error) {
	if len(logits) == 0 {
		return nil, fmt.Errorf("no logits")
	}
	maxLogit := math.Inf(-1)
	for i, v := range logits {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("logit %d is not finite: %v", i, v)
		}
		if f > maxLogit {
			maxLogit = f
		}
	}

	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(float64(v) - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}

// newPrediction applies softmax to logits and maps positions to labels.
func newPrediction(labels LabelSet, logits []float32) (*Prediction, error) {
	if len(logits) != labels.Len() {
		return nil, fmt.Errorf("model returned %d logits for %d labels", len(logits), labels.Len())
	}
	probs, err := softmax(logits)
	if err != nil {
		return nil, err
	}

	best := 0
	classProbs := make(map[string]float64, len(probs))
	for i, p := range probs {
		classProbs[labels.Name(i)] = p * 100
		if p > probs[best] {
			best = i
		}
	}

	return &Prediction{
		PredictedClass:     labels.Name(best),
		ConfidenceScore:    probs[best] * 100,
		ClassProbabilities: classProbs,
	}, nil
}
