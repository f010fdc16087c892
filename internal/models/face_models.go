package models

// Emotion is the coarse facial expression bucket.
type Emotion string

const (
	EmotionHappy   Emotion = "happy"
	EmotionSad     Emotion = "sad"
	EmotionNeutral Emotion = "neutral"
)

type BoundingBox struct {
	XMin int `json:"xmin"`
	YMin int `json:"ymin"`
	XMax int `json:"xmax"`
	YMax int `json:"ymax"`
}

// FaceDetection is one face found in one frame. Detections carry no identity
// across frames.
type FaceDetection struct {
	Box        BoundingBox `json:"box"`
	Emotion    Emotion     `json:"emotion"`
	Confidence float64     `json:"confidence"`
}

type VisionRequest struct {
	ImageData string `json:"imageData"`
}

type VisionResponse struct {
	Sentiment   string `json:"sentiment"`
	Error       string `json:"error,omitempty"`
	RateLimited bool   `json:"rateLimited,omitempty"`
}
