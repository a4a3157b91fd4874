package domain

// Segment is one time-aligned span of transcript text.
type Segment struct {
	Text       string         `json:"text"`
	StartSec   *float64       `json:"start_sec,omitempty"`
	EndSec     *float64       `json:"end_sec,omitempty"`
	SpeakerTag *int           `json:"speaker_tag,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
