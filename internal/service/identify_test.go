package service

import (
	"fmt"
	"math"
	"testing"

	"voiceid/speaker"
)

// fakeExtractor возвращает заранее заданный вектор для каждого пути
type fakeExtractor struct {
	vectors map[string][]float32
	dim     int
}

func (f *fakeExtractor) Extract(audioPath string, start, end float64) ([]float32, error) {
	v, ok := f.vectors[audioPath]
	if !ok {
		return nil, fmt.Errorf("no vector for %s", audioPath)
	}
	return v, nil
}

func (f *fakeExtractor) Dim() int { return f.dim }
func (f *fakeExtractor) Close()   {}

func unitVector(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1.0
	return v
}

// vectorAtSimilarity строит единичный вектор с заданной косинусной
// близостью к оси 0 (вторая компонента по оси 1).
func vectorAtSimilarity(dim int, sim float64) []float32 {
	v := make([]float32, dim)
	v[0] = float32(sim)
	v[1] = float32(math.Sqrt(1 - sim*sim))
	return v
}

func newTestService(t *testing.T, extractor *fakeExtractor) (*IdentificationService, *speaker.Store) {
	t.Helper()
	store, err := speaker.Open(":memory:", extractor.dim)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewIdentificationService(store, extractor, t.TempDir()), store
}

func TestIdentifyAutomatic(t *testing.T) {
	ex := &fakeExtractor{
		dim: 8,
		vectors: map[string][]float32{
			"bob.wav":   unitVector(8, 0),
			"probe.wav": vectorAtSimilarity(8, 0.90),
		},
	}
	svc, _ := newTestService(t, ex)

	sp, err := svc.Register(RegisterRequest{Name: "Bob", AudioPath: "bob.wav", End: 2.0})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	dec, err := svc.Identify(IdentifyRequest{AudioPath: "probe.wav", End: 2.0, SegmentID: "seg-1"})
	if err != nil {
		t.Fatalf("identify: %v", err)
	}

	if dec.Tier != speaker.TierAutomatic {
		t.Errorf("expected automatic tier, got %s (sim=%.3f conf=%.3f)", dec.Tier, dec.Similarity, dec.Confidence)
	}
	if !dec.Identified {
		t.Error("expected Identified=true for automatic tier")
	}
	if dec.SpeakerID != sp.ID || dec.SpeakerName != "Bob" {
		t.Errorf("expected speaker %s/Bob, got %s/%s", sp.ID, dec.SpeakerID, dec.SpeakerName)
	}
	if dec.Similarity < 0.89 || dec.Similarity > 0.91 {
		t.Errorf("unexpected similarity %.4f", dec.Similarity)
	}
	if dec.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %.2f", dec.Confidence)
	}
	// Автоматическое назначение пишется в аудит
	if dec.RecordID == "" {
		t.Error("expected identification record for automatic tier")
	}
}

func TestIdentifySuggestedNotRecorded(t *testing.T) {
	ex := &fakeExtractor{
		dim: 8,
		vectors: map[string][]float32{
			"bob.wav":   unitVector(8, 0),
			"probe.wav": vectorAtSimilarity(8, 0.70),
		},
	}
	svc, _ := newTestService(t, ex)

	if _, err := svc.Register(RegisterRequest{Name: "Bob", AudioPath: "bob.wav", End: 2.0}); err != nil {
		t.Fatalf("register: %v", err)
	}

	dec, err := svc.Identify(IdentifyRequest{AudioPath: "probe.wav", End: 2.0})
	if err != nil {
		t.Fatalf("identify: %v", err)
	}

	if dec.Tier != speaker.TierSuggested {
		t.Errorf("expected suggested tier, got %s (conf=%.2f)", dec.Tier, dec.Confidence)
	}
	if dec.Identified {
		t.Error("suggested tier must not auto-identify")
	}
	if dec.RecordID != "" {
		t.Error("suggested tier must not write identification records")
	}
}

func TestIdentifyUnknown(t *testing.T) {
	ex := &fakeExtractor{
		dim: 8,
		vectors: map[string][]float32{
			"bob.wav":   unitVector(8, 0),
			"probe.wav": unitVector(8, 3), // ортогонален профилю
		},
	}
	svc, _ := newTestService(t, ex)

	if _, err := svc.Register(RegisterRequest{Name: "Bob", AudioPath: "bob.wav", End: 2.0}); err != nil {
		t.Fatalf("register: %v", err)
	}

	dec, err := svc.Identify(IdentifyRequest{AudioPath: "probe.wav", End: 2.0})
	if err != nil {
		t.Fatalf("identify: %v", err)
	}

	if dec.Tier != speaker.TierUnknown {
		t.Errorf("expected unknown tier, got %s", dec.Tier)
	}
	if dec.Identified || dec.SpeakerID != "" {
		t.Errorf("unknown tier must carry no speaker, got %+v", dec)
	}
}

func TestIdentifyEmptyDatabase(t *testing.T) {
	ex := &fakeExtractor{
		dim:     8,
		vectors: map[string][]float32{"probe.wav": unitVector(8, 0)},
	}
	svc, _ := newTestService(t, ex)

	dec, err := svc.Identify(IdentifyRequest{AudioPath: "probe.wav", End: 2.0})
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	if dec.Tier != speaker.TierUnknown {
		t.Errorf("expected unknown tier on empty database, got %s", dec.Tier)
	}
}

func TestRegisterRollbackOnExtractionFailure(t *testing.T) {
	ex := &fakeExtractor{dim: 8, vectors: map[string][]float32{}}
	svc, store := newTestService(t, ex)

	_, err := svc.Register(RegisterRequest{Name: "Ghost", AudioPath: "missing.wav", End: 2.0})
	if err == nil {
		t.Fatal("expected error when extraction fails")
	}

	count, err := store.CountSpeakers()
	if err != nil {
		t.Fatalf("count speakers: %v", err)
	}
	if count != 0 {
		t.Errorf("expected profile rollback, found %d speakers", count)
	}
}

func TestRegisterRequiresName(t *testing.T) {
	ex := &fakeExtractor{dim: 8, vectors: map[string][]float32{"a.wav": unitVector(8, 0)}}
	svc, _ := newTestService(t, ex)

	if _, err := svc.Register(RegisterRequest{Name: "  ", AudioPath: "a.wav", End: 2.0}); err == nil {
		t.Fatal("expected validation error for blank name")
	}
}

func TestVerifyFromAudioAddsReference(t *testing.T) {
	ex := &fakeExtractor{
		dim: 8,
		vectors: map[string][]float32{
			"bob.wav":    unitVector(8, 0),
			"verify.wav": vectorAtSimilarity(8, 0.95),
		},
	}
	svc, store := newTestService(t, ex)

	sp, err := svc.Register(RegisterRequest{Name: "Bob", AudioPath: "bob.wav", End: 2.0})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	result, err := svc.VerifyFromAudio("verify.wav", 0, 2.0, speaker.Feedback{
		SpeakerID:  sp.ID,
		Correct:    true,
		SourceFile: "verify.wav",
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if result.EmbeddingID == "" {
		t.Error("expected new reference embedding")
	}

	embeddings, err := store.SpeakerEmbeddings(sp.ID)
	if err != nil {
		t.Fatalf("speaker embeddings: %v", err)
	}
	if len(embeddings) != 2 {
		t.Errorf("expected 2 embeddings after verification, got %d", len(embeddings))
	}
}
