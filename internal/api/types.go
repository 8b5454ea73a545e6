package api

import (
	"voiceid/internal/service"
	"voiceid/models"
	"voiceid/speaker"
)

// Message WebSocket/gRPC message structure
type Message struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`

	// Speaker operations
	SpeakerID string                  `json:"speakerId,omitempty"`
	Name      string                  `json:"name,omitempty"`
	Metadata  map[string]any          `json:"metadata,omitempty"`
	Speaker   *speaker.Speaker        `json:"speaker,omitempty"`
	Speakers  []speaker.SpeakerSummary `json:"speakers,omitempty"`
	Count     int                     `json:"count,omitempty"`
	Deleted   bool                    `json:"deleted,omitempty"`

	// Identification
	AudioPath       string            `json:"audioPath,omitempty"`
	Start           float64           `json:"start,omitempty"`
	End             float64           `json:"end,omitempty"`
	TranscriptionID string            `json:"transcriptionId,omitempty"`
	SegmentID       string            `json:"segmentId,omitempty"`
	SaveSample      bool              `json:"saveSample,omitempty"`
	Decision        *service.Decision `json:"decision,omitempty"`

	// Feedback / confidence
	Correct      bool                  `json:"correct,omitempty"`
	Verified     bool                  `json:"verified,omitempty"`
	Confidence   float64               `json:"confidence,omitempty"`
	EmbeddingID  string                `json:"embeddingId,omitempty"`
	VerifyResult *speaker.VerifyResult `json:"verifyResult,omitempty"`

	// Profile details
	Embeddings []speaker.Embedding              `json:"embeddings,omitempty"`
	History    []speaker.ConfidenceHistoryEntry `json:"history,omitempty"`
	Stats      *speaker.SpeakerStats            `json:"stats,omitempty"`

	// Models
	Models   []models.ModelState `json:"models,omitempty"`
	ModelID  string              `json:"modelId,omitempty"`
	Progress float64             `json:"progress,omitempty"`
	Error    string              `json:"error,omitempty"`
}
