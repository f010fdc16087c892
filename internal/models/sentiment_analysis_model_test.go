package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSentiment(t *testing.T) {
	tests := []struct {
		in   string
		want Sentiment
		ok   bool
	}{
		{"positive", SentimentPositive, true},
		{"NEGATIVE", SentimentNegative, true},
		{" Neutral ", SentimentNeutral, true},
		{"LABEL_2", SentimentNeutral, false},
		{"bad", SentimentNeutral, false},
		{"", SentimentNeutral, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := LookupSentiment(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, ParseSentiment(tt.in))
		})
	}
}
