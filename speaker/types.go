// Package speaker реализует идентификацию спикеров по голосовым embeddings:
// персистентное хранилище профилей, поиск по косинусному сходству,
// классификацию уверенности и обучение на ручной обратной связи
package speaker

import (
	"errors"
	"fmt"
	"time"
)

// DefaultVectorDim размерность вектора по умолчанию (3D-Speaker ERes2Net)
const DefaultVectorDim = 512

// DefaultConfidence нейтральная начальная уверенность нового embedding
const DefaultConfidence = 0.5

// Speaker зарегистрированный спикер
type Speaker struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	SamplePath string         `json:"samplePath,omitempty"` // Путь к аудио-сэмплу для воспроизведения
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Embedding голосовой отпечаток, принадлежащий ровно одному спикеру
type Embedding struct {
	ID           string         `json:"id"`
	SpeakerID    string         `json:"speakerId"`
	Vector       []float32      `json:"vector"`
	Confidence   float64        `json:"confidence"` // 0..1
	SourceFile   string         `json:"sourceFile,omitempty"`
	SegmentStart float64        `json:"segmentStart,omitempty"` // Секунды
	SegmentEnd   float64        `json:"segmentEnd,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Candidate embedding вместе с именем владельца — элемент пула кандидатов для matching
type Candidate struct {
	EmbeddingID string    `json:"embeddingId"`
	SpeakerID   string    `json:"speakerId"`
	SpeakerName string    `json:"speakerName"`
	Vector      []float32 `json:"-"`
	Confidence  float64   `json:"confidence"`
}

// IdentificationType тип записи идентификации
type IdentificationType string

const (
	IdentificationAutomatic IdentificationType = "automatic"
	IdentificationManual    IdentificationType = "manual"
)

// IdentificationRecord append-only запись аудита идентификаций
type IdentificationRecord struct {
	ID              string             `json:"id"`
	SpeakerID       string             `json:"speakerId"`
	EmbeddingID     string             `json:"embeddingId"`
	TranscriptionID string             `json:"transcriptionId,omitempty"`
	SegmentID       string             `json:"segmentId,omitempty"`
	Similarity      float64            `json:"similarity"`
	Type            IdentificationType `json:"type"`
	Verified        bool               `json:"verified"`
	CreatedAt       time.Time          `json:"createdAt"`
}

// Reason причина изменения confidence
type Reason string

const (
	ReasonCorrect      Reason = "correct"
	ReasonIncorrect    Reason = "incorrect"
	ReasonManualVerify Reason = "manual_verify"
	ReasonManualReject Reason = "manual_reject"
)

// ConfidenceHistoryEntry append-only запись аудита: одна строка на каждое изменение confidence
type ConfidenceHistoryEntry struct {
	ID            string    `json:"id"`
	EmbeddingID   string    `json:"embeddingId"`
	OldConfidence float64   `json:"oldConfidence"`
	NewConfidence float64   `json:"newConfidence"`
	Reason        Reason    `json:"reason"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SpeakerSummary спикер с агрегатами по его embeddings
type SpeakerSummary struct {
	Speaker
	EmbeddingCount int     `json:"embeddingCount"`
	AvgConfidence  float64 `json:"avgConfidence"`
}

// SpeakerStats статистика уверенности по спикеру
type SpeakerStats struct {
	SpeakerID      string  `json:"speakerId"`
	EmbeddingCount int     `json:"embeddingCount"`
	AvgConfidence  float64 `json:"avgConfidence"`
	MinConfidence  float64 `json:"minConfidence"`
	MaxConfidence  float64 `json:"maxConfidence"`
}

var (
	// ErrSpeakerNotFound спикер с указанным ID отсутствует в хранилище
	ErrSpeakerNotFound = errors.New("speaker not found")
	// ErrEmbeddingNotFound embedding с указанным ID отсутствует в хранилище
	ErrEmbeddingNotFound = errors.New("embedding not found")
	// ErrStoreClosed хранилище закрыто, операция невозможна
	ErrStoreClosed = errors.New("profile store is closed")
)

// ValidationError ошибка проверки входных данных на границе хранилища
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func validateConfidence(field string, c float64) error {
	if c < 0 || c > 1 {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be in [0,1], got %g", c)}
	}
	return nil
}
