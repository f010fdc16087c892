package sentiment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spacesedan/moodlens/config"
	"github.com/spacesedan/moodlens/internal/models"
)

// Policy turns a raw (label, score) pair into one of the three sentiment
// buckets.
//
// In ternary mode the label is trusted as-is (after lowercasing and the
// optional label map). In cutoff mode a score below Threshold is reported as
// neutral. In band mode a score inside [BandLow, BandHigh] is reported as
// neutral.
type Policy struct {
	Mode      string
	Threshold float64
	BandLow   float64
	BandHigh  float64
	// LabelMap rewrites model-specific labels such as LABEL_0 before matching.
	// Keys are compared lowercased.
	LabelMap map[string]string
}

// NewPolicy builds a validated Policy from configuration.
func NewPolicy(cfg config.PolicyConfig) (Policy, error) {
	p := Policy{
		Mode:      cfg.Mode,
		Threshold: cfg.Threshold,
		BandLow:   cfg.BandLow,
		BandHigh:  cfg.BandHigh,
		LabelMap:  make(map[string]string, len(cfg.LabelMap)),
	}
	for k, v := range cfg.LabelMap {
		p.LabelMap[strings.ToLower(k)] = strings.ToLower(v)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Ternary is the policy for models that already emit all three labels.
func Ternary() Policy {
	return Policy{Mode: config.PolicyTernary}
}

// Cutoff is the single-threshold policy for binary models.
func Cutoff(threshold float64) Policy {
	return Policy{Mode: config.PolicyCutoff, Threshold: threshold}
}

// Band is the symmetric-band policy for binary models.
func Band(low, high float64) Policy {
	return Policy{Mode: config.PolicyBand, BandLow: low, BandHigh: high}
}

func (p Policy) Validate() error {
	switch p.Mode {
	case config.PolicyTernary:
		return nil
	case config.PolicyCutoff:
		if p.Threshold < 0 || p.Threshold > 1 {
			return fmt.Errorf("threshold %.2f outside [0,1]", p.Threshold)
		}
		return nil
	case config.PolicyBand:
		if p.BandLow < 0 || p.BandHigh > 1 || p.BandLow > p.BandHigh {
			return fmt.Errorf("band [%.2f, %.2f] is not a sub-range of [0,1]", p.BandLow, p.BandHigh)
		}
		return nil
	case "":
		return errors.New("policy mode is empty")
	default:
		return fmt.Errorf("unknown policy mode %q", p.Mode)
	}
}

// Map applies the policy. It never fails and always returns one of the three
// buckets.
func (p Policy) Map(raw models.RawClassification) models.Sentiment {
	label := p.normalizeLabel(raw.Label)
	sentiment, ok := models.LookupSentiment(label)
	if !ok {
		return models.SentimentNeutral
	}

	switch p.Mode {
	case config.PolicyCutoff:
		if raw.Score < p.Threshold {
			return models.SentimentNeutral
		}
	case config.PolicyBand:
		if raw.Score >= p.BandLow && raw.Score <= p.BandHigh {
			return models.SentimentNeutral
		}
	}

	return sentiment
}

func (p Policy) normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if mapped, ok := p.LabelMap[label]; ok {
		return mapped
	}
	return label
}
