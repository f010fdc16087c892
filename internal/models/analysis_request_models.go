package models

import "time"

const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// AnalysisRequest is consumed from the request topic.
type AnalysisRequest struct {
	RequestID string   `json:"request_id"`
	Mode      string   `json:"mode"`
	Comments  []string `json:"comments"`
}

// AnalysisResponse is published to the result topic.
type AnalysisResponse struct {
	RequestID string            `json:"request_id"`
	RunID     string            `json:"run_id,omitempty"`
	Results   []SentimentResult `json:"results"`
	Error     string            `json:"error,omitempty"`
}

// Run is a persisted analysis run.
type Run struct {
	ID        string            `json:"id" dynamodbav:"run_id"`
	Mode      string            `json:"mode" dynamodbav:"mode"`
	Backend   string            `json:"backend" dynamodbav:"backend"`
	CreatedAt time.Time         `json:"created_at" dynamodbav:"created_at"`
	Total     int               `json:"total" dynamodbav:"total"`
	Counts    map[Sentiment]int `json:"counts" dynamodbav:"counts"`
	Error     string            `json:"error,omitempty" dynamodbav:"error,omitempty"`
}
