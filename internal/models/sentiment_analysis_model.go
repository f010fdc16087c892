package models

import "strings"

// Sentiment is the bucket assigned to a comment.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Sentiments lists every valid bucket in display order.
var Sentiments = []Sentiment{SentimentPositive, SentimentNegative, SentimentNeutral}

// ParseSentiment lowercases s and matches it exactly against the three
// buckets. Anything else is neutral.
func ParseSentiment(s string) Sentiment {
	sentiment, _ := LookupSentiment(s)
	return sentiment
}

// LookupSentiment is ParseSentiment that also reports whether s was valid.
func LookupSentiment(s string) (Sentiment, bool) {
	switch Sentiment(strings.ToLower(strings.TrimSpace(s))) {
	case SentimentPositive:
		return SentimentPositive, true
	case SentimentNegative:
		return SentimentNegative, true
	case SentimentNeutral:
		return SentimentNeutral, true
	default:
		return SentimentNeutral, false
	}
}

// RawClassification is what a model or API hands back before the mapping
// policy is applied. It never leaves the classifier boundary.
type RawClassification struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// SentimentResult is one classified comment.
type SentimentResult struct {
	Comment   string    `json:"comment" dynamodbav:"comment"`
	Sentiment Sentiment `json:"sentiment" dynamodbav:"sentiment"`
}

// AnalysisProgress is emitted after each comment of a run.
type AnalysisProgress struct {
	Current int             `json:"current"`
	Total   int             `json:"total"`
	Result  SentimentResult `json:"result"`
}
