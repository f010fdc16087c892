package sentiment

import (
	"testing"

	"github.com/spacesedan/moodlens/config"
	"github.com/spacesedan/moodlens/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(label string, score float64) models.RawClassification {
	return models.RawClassification{Label: label, Score: score}
}

func TestPolicyMap_Cutoff(t *testing.T) {
	p := Cutoff(0.7)

	got := []models.Sentiment{
		p.Map(raw("POSITIVE", 0.95)),
		p.Map(raw("NEGATIVE", 0.9)),
		p.Map(raw("POSITIVE", 0.5)),
	}

	assert.Equal(t, []models.Sentiment{
		models.SentimentPositive,
		models.SentimentNegative,
		models.SentimentNeutral,
	}, got)
}

func TestPolicyMap_CutoffBoundaryKeepsLabel(t *testing.T) {
	p := Cutoff(0.7)
	assert.Equal(t, models.SentimentNegative, p.Map(raw("negative", 0.7)))
	assert.Equal(t, models.SentimentNeutral, p.Map(raw("negative", 0.6999)))
}

func TestPolicyMap_Band(t *testing.T) {
	p := Band(0.4, 0.6)

	tests := []struct {
		label string
		score float64
		want  models.Sentiment
	}{
		{"positive", 0.61, models.SentimentPositive},
		{"positive", 0.6, models.SentimentNeutral},
		{"negative", 0.5, models.SentimentNeutral},
		{"negative", 0.4, models.SentimentNeutral},
		{"negative", 0.39, models.SentimentNegative},
		{"negative", 0.99, models.SentimentNegative},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Map(raw(tt.label, tt.score)), "%s@%.2f", tt.label, tt.score)
	}
}

func TestPolicyMap_Ternary(t *testing.T) {
	p := Ternary()

	assert.Equal(t, models.SentimentPositive, p.Map(raw("Positive", 0.1)))
	assert.Equal(t, models.SentimentNeutral, p.Map(raw("neutral", 0.99)))
	assert.Equal(t, models.SentimentNegative, p.Map(raw(" NEGATIVE ", 0.2)))
	assert.Equal(t, models.SentimentNeutral, p.Map(raw("mixed", 0.99)))
}

func TestPolicyMap_UnknownLabelIsNeutral(t *testing.T) {
	for _, p := range []Policy{Ternary(), Cutoff(0.7), Band(0.4, 0.6)} {
		assert.Equal(t, models.SentimentNeutral, p.Map(raw("LABEL_7", 0.99)), p.Mode)
		assert.Equal(t, models.SentimentNeutral, p.Map(raw("", 0.99)), p.Mode)
	}
}

func TestNewPolicy_LabelMap(t *testing.T) {
	p, err := NewPolicy(config.PolicyConfig{
		Mode:      config.PolicyCutoff,
		Threshold: 0.7,
		LabelMap:  map[string]string{"LABEL_0": "NEGATIVE", "LABEL_1": "positive"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.SentimentNegative, p.Map(raw("LABEL_0", 0.8)))
	assert.Equal(t, models.SentimentPositive, p.Map(raw("label_1", 0.8)))
	assert.Equal(t, models.SentimentNeutral, p.Map(raw("LABEL_1", 0.3)))
}

func TestPolicyValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{"ternary", Ternary(), false},
		{"cutoff", Cutoff(0.7), false},
		{"cutoff zero", Cutoff(0), false},
		{"cutoff above one", Cutoff(1.2), true},
		{"cutoff negative", Cutoff(-0.1), true},
		{"band", Band(0.4, 0.6), false},
		{"band degenerate", Band(0.5, 0.5), false},
		{"band inverted", Band(0.6, 0.4), true},
		{"band above one", Band(0.4, 1.1), true},
		{"empty mode", Policy{}, true},
		{"unknown mode", Policy{Mode: "fuzzy"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewPolicy_RejectsInvalid(t *testing.T) {
	_, err := NewPolicy(config.PolicyConfig{Mode: config.PolicyBand, BandLow: 0.9, BandHigh: 0.1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "band")
}
