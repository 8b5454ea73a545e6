package speaker

import (
	"errors"
	"math"
	"sync"
	"testing"
)

const testDim = 8

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:", testDim)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testVector(seed float32) []float32 {
	v := make([]float32, testDim)
	for i := range v {
		v[i] = seed + float32(i)*0.1
	}
	return v
}

func TestCreateAndGetSpeaker(t *testing.T) {
	store := openTestStore(t)

	id, err := store.CreateSpeaker("Alice", map[string]any{"lang": "en"})
	if err != nil {
		t.Fatalf("create speaker: %v", err)
	}

	sp, err := store.SpeakerByID(id)
	if err != nil {
		t.Fatalf("get speaker: %v", err)
	}
	if sp.Name != "Alice" {
		t.Errorf("name = %q, want Alice", sp.Name)
	}
	if sp.Metadata["lang"] != "en" {
		t.Errorf("metadata = %v, want lang=en", sp.Metadata)
	}

	if _, err := store.SpeakerByID("no-such-id"); !errors.Is(err, ErrSpeakerNotFound) {
		t.Errorf("unknown speaker: got %v, want ErrSpeakerNotFound", err)
	}
}

func TestAddEmbeddingValidation(t *testing.T) {
	store := openTestStore(t)
	id, _ := store.CreateSpeaker("Alice", nil)

	// Неизвестный спикер
	_, err := store.AddEmbedding(AddEmbeddingParams{
		SpeakerID: "missing", Vector: testVector(0), Confidence: 0.5,
	})
	if !errors.Is(err, ErrSpeakerNotFound) {
		t.Errorf("unknown speaker: got %v, want ErrSpeakerNotFound", err)
	}

	// Confidence вне диапазона
	_, err = store.AddEmbedding(AddEmbeddingParams{
		SpeakerID: id, Vector: testVector(0), Confidence: 1.5,
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("confidence 1.5: got %v, want ValidationError", err)
	}

	// Несовпадение размерности
	_, err = store.AddEmbedding(AddEmbeddingParams{
		SpeakerID: id, Vector: make([]float32, testDim+1), Confidence: 0.5,
	})
	if !errors.As(err, &ve) {
		t.Errorf("dimension mismatch: got %v, want ValidationError", err)
	}
}

func TestUpdateConfidenceWithHistory(t *testing.T) {
	store := openTestStore(t)

	// Сценарий: Alice, embedding 0.5 -> update_confidence(0.9, correct)
	id, _ := store.CreateSpeaker("Alice", nil)
	embID, err := store.AddEmbedding(AddEmbeddingParams{
		SpeakerID: id, Vector: testVector(0.1), Confidence: 0.5,
	})
	if err != nil {
		t.Fatalf("add embedding: %v", err)
	}

	if err := store.UpdateConfidence(embID, 0.9, ReasonCorrect); err != nil {
		t.Fatalf("update confidence: %v", err)
	}

	embs, err := store.SpeakerEmbeddings(id)
	if err != nil {
		t.Fatalf("speaker embeddings: %v", err)
	}
	if len(embs) != 1 || embs[0].Confidence != 0.9 {
		t.Fatalf("embeddings = %+v, want one with confidence 0.9", embs)
	}

	history, err := store.EmbeddingHistory(embID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want exactly 1", len(history))
	}
	h := history[0]
	if h.OldConfidence != 0.5 || h.NewConfidence != 0.9 || h.Reason != ReasonCorrect {
		t.Errorf("history = %+v, want 0.5 -> 0.9 correct", h)
	}
}

func TestUpdateConfidenceUnknownEmbedding(t *testing.T) {
	store := openTestStore(t)

	err := store.UpdateConfidence("missing", 0.5, ReasonCorrect)
	if !errors.Is(err, ErrEmbeddingNotFound) {
		t.Errorf("got %v, want ErrEmbeddingNotFound", err)
	}
}

func TestUpdateConfidenceBatchAtomicity(t *testing.T) {
	store := openTestStore(t)
	id, _ := store.CreateSpeaker("Alice", nil)
	embID, _ := store.AddEmbedding(AddEmbeddingParams{
		SpeakerID: id, Vector: testVector(0.1), Confidence: 0.5,
	})

	// Второе обновление ссылается на несуществующий embedding:
	// весь пакет должен откатиться, включая первое обновление
	err := store.UpdateConfidenceBatch([]ConfidenceUpdate{
		{EmbeddingID: embID, NewConfidence: 0.9, Reason: ReasonCorrect},
		{EmbeddingID: "missing", NewConfidence: 0.2, Reason: ReasonIncorrect},
	})
	if !errors.Is(err, ErrEmbeddingNotFound) {
		t.Fatalf("got %v, want ErrEmbeddingNotFound", err)
	}

	embs, _ := store.SpeakerEmbeddings(id)
	if embs[0].Confidence != 0.5 {
		t.Errorf("confidence = %v, want 0.5 (batch must roll back)", embs[0].Confidence)
	}
	history, _ := store.EmbeddingHistory(embID)
	if len(history) != 0 {
		t.Errorf("history rows = %d, want 0 after rollback", len(history))
	}
}

func TestAllEmbeddingsOrderedByConfidence(t *testing.T) {
	store := openTestStore(t)
	alice, _ := store.CreateSpeaker("Alice", nil)
	bob, _ := store.CreateSpeaker("Bob", nil)

	store.AddEmbedding(AddEmbeddingParams{SpeakerID: alice, Vector: testVector(0.1), Confidence: 0.4})
	store.AddEmbedding(AddEmbeddingParams{SpeakerID: bob, Vector: testVector(0.2), Confidence: 0.9})
	store.AddEmbedding(AddEmbeddingParams{SpeakerID: alice, Vector: testVector(0.3), Confidence: 0.6})

	all, err := store.AllEmbeddings()
	if err != nil {
		t.Fatalf("all embeddings: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("candidates = %d, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Confidence > all[i-1].Confidence {
			t.Errorf("candidates not sorted by confidence desc: %v", all)
		}
	}
	if all[0].SpeakerName != "Bob" {
		t.Errorf("top candidate = %s, want Bob", all[0].SpeakerName)
	}
	if len(all[0].Vector) != testDim {
		t.Errorf("vector dim = %d, want %d", len(all[0].Vector), testDim)
	}
}

func TestDeleteSpeakerCascades(t *testing.T) {
	store := openTestStore(t)
	id, _ := store.CreateSpeaker("Alice", nil)
	embID, _ := store.AddEmbedding(AddEmbeddingParams{
		SpeakerID: id, Vector: testVector(0.1), Confidence: 0.5,
	})
	store.RecordIdentification(RecordIdentificationParams{
		SpeakerID: id, EmbeddingID: embID, Similarity: 0.9, Type: IdentificationAutomatic,
	})
	store.UpdateConfidence(embID, 0.7, ReasonCorrect)

	deleted, err := store.DeleteSpeaker(id)
	if err != nil || !deleted {
		t.Fatalf("delete speaker: deleted=%v err=%v", deleted, err)
	}

	if _, err := store.SpeakerByID(id); !errors.Is(err, ErrSpeakerNotFound) {
		t.Errorf("speaker still present after delete: %v", err)
	}
	embs, _ := store.SpeakerEmbeddings(id)
	if len(embs) != 0 {
		t.Errorf("embeddings = %d, want 0 after cascade", len(embs))
	}
	history, _ := store.EmbeddingHistory(embID)
	if len(history) != 0 {
		t.Errorf("history rows = %d, want 0 after cascade", len(history))
	}

	// Повторное удаление — false, не ошибка
	deleted, err = store.DeleteSpeaker(id)
	if err != nil || deleted {
		t.Errorf("second delete: deleted=%v err=%v, want false nil", deleted, err)
	}
}

func TestListSpeakersAggregates(t *testing.T) {
	store := openTestStore(t)
	alice, _ := store.CreateSpeaker("Alice", nil)
	store.CreateSpeaker("Bob", nil)

	store.AddEmbedding(AddEmbeddingParams{SpeakerID: alice, Vector: testVector(0.1), Confidence: 0.4})
	store.AddEmbedding(AddEmbeddingParams{SpeakerID: alice, Vector: testVector(0.2), Confidence: 0.8})

	list, err := store.ListSpeakers()
	if err != nil {
		t.Fatalf("list speakers: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("speakers = %d, want 2", len(list))
	}

	byName := map[string]SpeakerSummary{}
	for _, s := range list {
		byName[s.Name] = s
	}

	if a := byName["Alice"]; a.EmbeddingCount != 2 || math.Abs(a.AvgConfidence-0.6) > 1e-9 {
		t.Errorf("Alice aggregates = %+v, want count 2 avg 0.6", a)
	}
	if b := byName["Bob"]; b.EmbeddingCount != 0 || b.AvgConfidence != 0 {
		t.Errorf("Bob aggregates = %+v, want zeros", b)
	}
}

func TestSpeakerStats(t *testing.T) {
	store := openTestStore(t)
	id, _ := store.CreateSpeaker("Alice", nil)

	// Пустой профиль — нули
	stats, err := store.SpeakerStats(id)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.EmbeddingCount != 0 || stats.AvgConfidence != 0 {
		t.Errorf("empty stats = %+v, want zeros", stats)
	}

	store.AddEmbedding(AddEmbeddingParams{SpeakerID: id, Vector: testVector(0.1), Confidence: 0.2})
	store.AddEmbedding(AddEmbeddingParams{SpeakerID: id, Vector: testVector(0.2), Confidence: 0.8})
	store.AddEmbedding(AddEmbeddingParams{SpeakerID: id, Vector: testVector(0.3), Confidence: 0.5})

	stats, err = store.SpeakerStats(id)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.EmbeddingCount != 3 {
		t.Errorf("count = %d, want 3", stats.EmbeddingCount)
	}
	if math.Abs(stats.AvgConfidence-0.5) > 1e-9 {
		t.Errorf("avg = %v, want 0.5", stats.AvgConfidence)
	}
	if stats.MinConfidence != 0.2 || stats.MaxConfidence != 0.8 {
		t.Errorf("min/max = %v/%v, want 0.2/0.8", stats.MinConfidence, stats.MaxConfidence)
	}

	if _, err := store.SpeakerStats("missing"); !errors.Is(err, ErrSpeakerNotFound) {
		t.Errorf("stats for unknown speaker: got %v, want ErrSpeakerNotFound", err)
	}
}

func TestVectorRoundTrip(t *testing.T) {
	store := openTestStore(t)
	id, _ := store.CreateSpeaker("Alice", nil)

	vector := testVector(-0.7)
	embID, err := store.AddEmbedding(AddEmbeddingParams{
		SpeakerID: id, Vector: vector, Confidence: 0.5,
		SourceFile: "meeting.wav", SegmentStart: 1.5, SegmentEnd: 6.5,
		Metadata: map[string]any{"initial_registration": true},
	})
	if err != nil {
		t.Fatalf("add embedding: %v", err)
	}

	embs, _ := store.SpeakerEmbeddings(id)
	if len(embs) != 1 {
		t.Fatalf("embeddings = %d, want 1", len(embs))
	}
	e := embs[0]
	if e.ID != embID {
		t.Errorf("id = %s, want %s", e.ID, embID)
	}
	for i := range vector {
		if e.Vector[i] != vector[i] {
			t.Fatalf("vector[%d] = %v, want %v", i, e.Vector[i], vector[i])
		}
	}
	if e.SourceFile != "meeting.wav" || e.SegmentStart != 1.5 || e.SegmentEnd != 6.5 {
		t.Errorf("segment fields = %+v", e)
	}
	if e.Metadata["initial_registration"] != true {
		t.Errorf("metadata = %v", e.Metadata)
	}
}

func TestClosedStore(t *testing.T) {
	store, err := Open(":memory:", testDim)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store.Close()

	if _, err := store.CreateSpeaker("Alice", nil); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("got %v, want ErrStoreClosed", err)
	}
}

// Конкурентные вызовы сериализуются горутиной-владельцем: гонок и ошибок нет
func TestConcurrentAccessSerialized(t *testing.T) {
	store := openTestStore(t)
	id, _ := store.CreateSpeaker("Alice", nil)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(seed float32) {
			defer wg.Done()
			if _, err := store.AddEmbedding(AddEmbeddingParams{
				SpeakerID: id, Vector: testVector(seed), Confidence: 0.5,
			}); err != nil {
				errs <- err
			}
			if _, err := store.AllEmbeddings(); err != nil {
				errs <- err
			}
		}(float32(i) * 0.01)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent op failed: %v", err)
	}

	embs, _ := store.SpeakerEmbeddings(id)
	if len(embs) != 20 {
		t.Errorf("embeddings = %d, want 20", len(embs))
	}
}
