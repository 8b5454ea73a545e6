package speaker

import (
	"fmt"
	"log"
)

const (
	// Confidence нового embedding из ручной обратной связи.
	// Ручной фидбек надёжнее автоматического matching, поэтому даже
	// "исправленный" embedding получает высокую уверенность.
	verifiedCorrectConfidence   = 0.95
	verifiedCorrectedConfidence = 0.80

	// Поправки распространяются только на embeddings, близкие к точке
	// обратной связи (similarity строго выше порога), не на весь профиль
	propagationThreshold = 0.80

	incorrectFactor = 0.7
	incorrectFloor  = 0.1
	correctFactor   = 1.2
	correctCeiling  = 1.0
)

// Learner корректирует уверенность сохранённых embeddings по ручной
// обратной связи, с полной историей аудита в хранилище
type Learner struct {
	store *Store
}

// NewLearner создаёт новый learner поверх хранилища
func NewLearner(store *Store) *Learner {
	return &Learner{store: store}
}

// Feedback ручная верификация или исправление идентификации
type Feedback struct {
	SpeakerID       string
	Vector          []float32
	Correct         bool // true = идентификация была верной
	SourceFile      string
	SegmentStart    float64
	SegmentEnd      float64
	TranscriptionID string
	SegmentID       string
}

// VerifyResult результат обработки обратной связи
type VerifyResult struct {
	EmbeddingID string  `json:"embeddingId"` // Новый эталонный embedding
	Confidence  float64 `json:"confidence"`
	Adjusted    int     `json:"adjusted"` // Сколько существующих embeddings скорректировано
}

// VerifyIdentification обрабатывает ручную обратную связь:
//  1. Вставляет переданный embedding в профиль спикера
//  2. Пишет manual-запись идентификации (similarity=1.0, verified)
//  3. Распространяет поправку на существующие embeddings профиля,
//     близкие к эталону (cosine > 0.80): при ошибочной идентификации
//     confidence умножается на 0.7 (не ниже 0.1), при верной — на 1.2
//     (не выше 1.0). Все поправки применяются в одной транзакции:
//     сбой посреди цикла не оставляет частично обновлённый профиль.
func (l *Learner) VerifyIdentification(fb Feedback) (*VerifyResult, error) {
	// Снимок существующих embeddings ДО вставки эталона:
	// сам эталон в распространение не попадает
	existing, err := l.store.SpeakerEmbeddings(fb.SpeakerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load speaker embeddings: %w", err)
	}

	confidence := verifiedCorrectedConfidence
	if fb.Correct {
		confidence = verifiedCorrectConfidence
	}

	embeddingID, err := l.store.AddEmbedding(AddEmbeddingParams{
		SpeakerID:    fb.SpeakerID,
		Vector:       fb.Vector,
		Confidence:   confidence,
		SourceFile:   fb.SourceFile,
		SegmentStart: fb.SegmentStart,
		SegmentEnd:   fb.SegmentEnd,
		Metadata:     map[string]any{"manual_feedback": true, "feedback_correct": fb.Correct},
	})
	if err != nil {
		return nil, err
	}

	if _, err := l.store.RecordIdentification(RecordIdentificationParams{
		SpeakerID:       fb.SpeakerID,
		EmbeddingID:     embeddingID,
		Similarity:      1.0,
		Type:            IdentificationManual,
		TranscriptionID: fb.TranscriptionID,
		SegmentID:       fb.SegmentID,
		Verified:        true,
	}); err != nil {
		return nil, err
	}

	var updates []ConfidenceUpdate
	for _, e := range existing {
		similarity := CosineSimilarity(fb.Vector, e.Vector)
		if similarity <= propagationThreshold {
			continue
		}

		var newConfidence float64
		var reason Reason
		if fb.Correct {
			newConfidence = min(correctCeiling, e.Confidence*correctFactor)
			reason = ReasonCorrect
		} else {
			newConfidence = max(incorrectFloor, e.Confidence*incorrectFactor)
			reason = ReasonIncorrect
		}

		updates = append(updates, ConfidenceUpdate{
			EmbeddingID:   e.ID,
			NewConfidence: newConfidence,
			Reason:        reason,
		})
	}

	if err := l.store.UpdateConfidenceBatch(updates); err != nil {
		return nil, fmt.Errorf("confidence propagation failed: %w", err)
	}

	log.Printf("[Learner] Feedback applied: speaker=%s correct=%v adjusted=%d",
		fb.SpeakerID[:8], fb.Correct, len(updates))

	return &VerifyResult{
		EmbeddingID: embeddingID,
		Confidence:  confidence,
		Adjusted:    len(updates),
	}, nil
}

// SetConfidence прямая ручная установка confidence для embedding
// (reason = manual_verify при verified, иначе manual_reject)
func (l *Learner) SetConfidence(embeddingID string, confidence float64, verified bool) error {
	reason := ReasonManualReject
	if verified {
		reason = ReasonManualVerify
	}
	return l.store.UpdateConfidence(embeddingID, confidence, reason)
}
