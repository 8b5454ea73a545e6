package speaker

import (
	"math"
	"testing"
)

func TestCosineSimilarityIdentities(t *testing.T) {
	v := []float32{0.3, -1.2, 0.5, 2.0}

	if got := CosineSimilarity(v, v); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("cos(v, v) = %v, want 1.0", got)
	}

	neg := make([]float32, len(v))
	for i, x := range v {
		neg[i] = -x
	}
	if got := CosineSimilarity(v, neg); math.Abs(got+1.0) > 1e-9 {
		t.Errorf("cos(v, -v) = %v, want -1.0", got)
	}
}

func TestCosineSimilarityEdgeCases(t *testing.T) {
	v := []float32{1, 2, 3}
	zero := []float32{0, 0, 0}

	if got := CosineSimilarity(v, zero); got != 0.0 {
		t.Errorf("cos(v, 0) = %v, want exactly 0.0", got)
	}
	if got := CosineSimilarity(zero, zero); got != 0.0 {
		t.Errorf("cos(0, 0) = %v, want exactly 0.0", got)
	}
	// Несовпадающие длины — тоже 0, не паника
	if got := CosineSimilarity(v, []float32{1, 2}); got != 0.0 {
		t.Errorf("cos(len 3, len 2) = %v, want 0.0", got)
	}
	if got := CosineSimilarity(nil, nil); got != 0.0 {
		t.Errorf("cos(nil, nil) = %v, want 0.0", got)
	}
}

// vectorWithSimilarity строит единичный вектор с заданным косинусом к e1
func vectorWithSimilarity(dim int, cos float64) []float32 {
	v := make([]float32, dim)
	v[0] = float32(cos)
	v[1] = float32(math.Sqrt(1 - cos*cos))
	return v
}

func TestFindBestMatchSelectsMaximum(t *testing.T) {
	query := make([]float32, 4)
	query[0] = 1

	// Три кандидата с similarity 0.95, 0.5, 0.1 — порог 0.6 пропускает
	// только первого (сценарий из наблюдаемого поведения)
	candidates := []Candidate{
		{EmbeddingID: "a", SpeakerID: "s1", SpeakerName: "Alice", Vector: vectorWithSimilarity(4, 0.95)},
		{EmbeddingID: "b", SpeakerID: "s2", SpeakerName: "Bob", Vector: vectorWithSimilarity(4, 0.5)},
		{EmbeddingID: "c", SpeakerID: "s3", SpeakerName: "Carol", Vector: vectorWithSimilarity(4, 0.1)},
	}

	m := FindBestMatch(query, candidates, 0.6)
	if m == nil {
		t.Fatal("expected a match, got nil")
	}
	if m.EmbeddingID != "a" {
		t.Errorf("best match = %s, want a", m.EmbeddingID)
	}
	if math.Abs(m.Similarity-0.95) > 1e-6 {
		t.Errorf("similarity = %v, want 0.95", m.Similarity)
	}
}

func TestFindBestMatchTracksMaximumNotFirst(t *testing.T) {
	query := make([]float32, 4)
	query[0] = 1

	// Первый кандидат выше порога, но второй ещё выше — должен выиграть второй
	candidates := []Candidate{
		{EmbeddingID: "low", Vector: vectorWithSimilarity(4, 0.70)},
		{EmbeddingID: "high", Vector: vectorWithSimilarity(4, 0.90)},
	}

	m := FindBestMatch(query, candidates, 0.6)
	if m == nil || m.EmbeddingID != "high" {
		t.Fatalf("expected high, got %+v", m)
	}
}

func TestFindBestMatchTieFirstWins(t *testing.T) {
	query := make([]float32, 4)
	query[0] = 1

	same := vectorWithSimilarity(4, 0.85)
	candidates := []Candidate{
		{EmbeddingID: "first", Vector: same},
		{EmbeddingID: "second", Vector: same},
	}

	m := FindBestMatch(query, candidates, 0.6)
	if m == nil || m.EmbeddingID != "first" {
		t.Fatalf("tie must resolve to scan order, got %+v", m)
	}
}

func TestFindBestMatchThresholdIsStrict(t *testing.T) {
	query := make([]float32, 4)
	query[0] = 1

	// similarity == threshold не проходит (строго больше).
	// Вектор [3,4,0,0] даёт к e1 ровно 3/5 = 0.6 без ошибок округления.
	candidates := []Candidate{
		{EmbeddingID: "edge", Vector: []float32{3, 4, 0, 0}},
	}
	if m := FindBestMatch(query, candidates, 0.6); m != nil {
		t.Errorf("similarity equal to threshold must not match, got %+v", m)
	}

	if m := FindBestMatch(query, nil, 0.6); m != nil {
		t.Errorf("empty candidate pool must return nil, got %+v", m)
	}
}
