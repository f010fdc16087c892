package sentiment

import (
	"context"
	"math"

	"github.com/jonreiter/govader"
	"github.com/spacesedan/moodlens/internal/models"
)

// VaderClassifier is a lexicon-based binary classifier. It reports the sign
// of the VADER compound score as the label and maps |compound| onto [0.5, 1]
// so it reads like the top-label probability of a binary model.
type VaderClassifier struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

func NewVaderClassifier() *VaderClassifier {
	return &VaderClassifier{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

func (v *VaderClassifier) Classify(ctx context.Context, text string) (models.RawClassification, error) {
	if err := ctx.Err(); err != nil {
		return models.RawClassification{}, err
	}

	compound := v.analyzer.PolarityScores(text).Compound
	score := 0.5 + math.Abs(compound)/2

	var label string
	switch {
	case compound > 0:
		label = string(models.SentimentPositive)
	case compound < 0:
		label = string(models.SentimentNegative)
	default:
		label = string(models.SentimentNeutral)
	}

	return models.RawClassification{Label: label, Score: score}, nil
}
