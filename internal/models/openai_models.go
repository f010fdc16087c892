package models

// BatchLabel is a single entry of the JSON array the gateway is asked to
// return for a batch of comments.
type BatchLabel struct {
	Sentiment string `json:"sentiment" jsonschema:"enum=positive,enum=negative,enum=neutral"`
}
