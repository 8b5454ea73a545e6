// Package service содержит прикладную логику идентификации говорящих.
package service

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"voiceid/ai"
	"voiceid/audio"
	"voiceid/speaker"
)

// ErrNoExtractor операция требует загруженной модели embeddings
var ErrNoExtractor = errors.New("no embedding model loaded")

// IdentificationService связывает извлечение векторов, поиск совпадений
// и политику уверенности в единый цикл идентификации.
type IdentificationService struct {
	Store      *speaker.Store
	Extractor  ai.Extractor
	Learner    *speaker.Learner
	Thresholds speaker.Thresholds

	// Директория для образцов голоса (MP3 клипы)
	SamplesDir string
}

// NewIdentificationService создаёт сервис идентификации
func NewIdentificationService(store *speaker.Store, extractor ai.Extractor, samplesDir string) *IdentificationService {
	return &IdentificationService{
		Store:      store,
		Extractor:  extractor,
		Learner:    speaker.NewLearner(store),
		Thresholds: speaker.DefaultThresholds(),
		SamplesDir: samplesDir,
	}
}

// Decision результат идентификации сегмента
type Decision struct {
	Identified  bool         `json:"identified"`
	Tier        speaker.Tier `json:"tier"`
	SpeakerID   string       `json:"speaker_id,omitempty"`
	SpeakerName string       `json:"speaker_name,omitempty"`
	EmbeddingID string       `json:"embedding_id,omitempty"`
	Similarity  float64      `json:"similarity"`
	Confidence  float64      `json:"confidence"`
	RecordID    string       `json:"record_id,omitempty"`
}

// IdentifyRequest параметры идентификации сегмента аудио
type IdentifyRequest struct {
	AudioPath       string  `json:"audio_path"`
	Start           float64 `json:"start"`
	End             float64 `json:"end"`
	TranscriptionID string  `json:"transcription_id,omitempty"`
	SegmentID       string  `json:"segment_id,omitempty"`
}

// Identify извлекает вектор из сегмента аудио и ищет лучшее совпадение
// среди всех сохранённых профилей. Автоматические назначения записываются
// в историю идентификаций, предложения и неизвестные - нет.
func (s *IdentificationService) Identify(req IdentifyRequest) (*Decision, error) {
	if s.Extractor == nil {
		return nil, ErrNoExtractor
	}
	vector, err := s.Extractor.Extract(req.AudioPath, req.Start, req.End)
	if err != nil {
		return nil, fmt.Errorf("failed to extract voice vector: %w", err)
	}

	candidates, err := s.Store.AllEmbeddings()
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}

	match := speaker.FindBestMatch(vector, candidates, s.Thresholds.MinMatch)
	if match == nil {
		log.Printf("[Identify] No match above %.2f among %d candidates", s.Thresholds.MinMatch, len(candidates))
		return &Decision{Tier: speaker.TierUnknown}, nil
	}

	confidence := speaker.ConfidenceFromSimilarity(match.Similarity)
	tier := s.Thresholds.Classify(confidence)

	decision := &Decision{
		Identified:  tier == speaker.TierAutomatic,
		Tier:        tier,
		SpeakerID:   match.SpeakerID,
		SpeakerName: match.SpeakerName,
		EmbeddingID: match.EmbeddingID,
		Similarity:  match.Similarity,
		Confidence:  confidence,
	}

	// Только автоматические назначения попадают в историю
	if tier == speaker.TierAutomatic {
		recordID, err := s.Store.RecordIdentification(speaker.RecordIdentificationParams{
			SpeakerID:       match.SpeakerID,
			EmbeddingID:     match.EmbeddingID,
			TranscriptionID: req.TranscriptionID,
			SegmentID:       req.SegmentID,
			Similarity:      match.Similarity,
			Type:            speaker.IdentificationAutomatic,
			Verified:        false,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record identification: %w", err)
		}
		decision.RecordID = recordID
	}

	log.Printf("[Identify] %s: speaker=%s sim=%.3f conf=%.2f", tier, match.SpeakerName, match.Similarity, confidence)
	return decision, nil
}

// RegisterRequest параметры регистрации нового говорящего
type RegisterRequest struct {
	Name       string         `json:"name"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	AudioPath  string         `json:"audio_path"`
	Start      float64        `json:"start"`
	End        float64        `json:"end"`
	SaveSample bool           `json:"save_sample,omitempty"`
}

// Register создаёт профиль говорящего с первым вектором из сегмента аудио.
// Если извлечение вектора не удалось, профиль откатывается.
func (s *IdentificationService) Register(req RegisterRequest) (*speaker.Speaker, error) {
	if s.Extractor == nil {
		return nil, ErrNoExtractor
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &speaker.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	speakerID, err := s.Store.CreateSpeaker(name, req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to create speaker: %w", err)
	}

	rollback := func() {
		// Профиль без вектора бесполезен
		if _, delErr := s.Store.DeleteSpeaker(speakerID); delErr != nil {
			log.Printf("[Register] Rollback failed for speaker %s: %v", speakerID, delErr)
		}
	}

	vector, err := s.Extractor.Extract(req.AudioPath, req.Start, req.End)
	if err != nil {
		rollback()
		return nil, fmt.Errorf("failed to extract voice vector: %w", err)
	}

	_, err = s.Store.AddEmbedding(speaker.AddEmbeddingParams{
		SpeakerID:    speakerID,
		Vector:       vector,
		Confidence:   speaker.DefaultConfidence,
		SourceFile:   req.AudioPath,
		SegmentStart: req.Start,
		SegmentEnd:   req.End,
		Metadata:     map[string]any{"initial_registration": true},
	})
	if err != nil {
		rollback()
		return nil, fmt.Errorf("failed to store voice vector: %w", err)
	}

	if req.SaveSample && s.SamplesDir != "" {
		if err := s.saveSampleClip(speakerID, req.AudioPath, req.Start, req.End); err != nil {
			// Образец не критичен, профиль уже создан
			log.Printf("[Register] Sample clip failed for speaker %s: %v", speakerID, err)
		}
	}

	sp, err := s.Store.SpeakerByID(speakerID)
	if err != nil {
		return nil, err
	}

	log.Printf("[Register] Speaker registered: %s (%s)", sp.Name, sp.ID)
	return sp, nil
}

// Verify обрабатывает обратную связь пользователя по идентификации
func (s *IdentificationService) Verify(fb speaker.Feedback) (*speaker.VerifyResult, error) {
	return s.Learner.VerifyIdentification(fb)
}

// VerifyFromAudio извлекает вектор из сегмента и передаёт его ученику
// вместе с вердиктом пользователя.
func (s *IdentificationService) VerifyFromAudio(audioPath string, start, end float64, fb speaker.Feedback) (*speaker.VerifyResult, error) {
	if s.Extractor == nil {
		return nil, ErrNoExtractor
	}
	vector, err := s.Extractor.Extract(audioPath, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to extract voice vector: %w", err)
	}
	fb.Vector = vector
	return s.Learner.VerifyIdentification(fb)
}

// Statistics возвращает агрегированную статистику по говорящему
func (s *IdentificationService) Statistics(speakerID string) (*speaker.SpeakerStats, error) {
	return s.Store.SpeakerStats(speakerID)
}

// saveSampleClip вырезает сегмент и сохраняет его как MP3 образец голоса
func (s *IdentificationService) saveSampleClip(speakerID, audioPath string, start, end float64) error {
	samples, sampleRate, err := audio.ReadSegment(audioPath, start, end)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.SamplesDir, 0755); err != nil {
		return fmt.Errorf("failed to create samples directory: %w", err)
	}

	clipPath := filepath.Join(s.SamplesDir, speakerID+".mp3")
	if err := audio.WriteSampleClip(clipPath, samples, sampleRate); err != nil {
		return err
	}

	return s.Store.SetSpeakerSample(speakerID, clipPath)
}
