package speaker

import (
	"log"
	"math"
)

// Match лучший кандидат, найденный линейным сканом
type Match struct {
	Candidate
	Similarity float64
}

// CosineSimilarity вычисляет косинусное сходство двух векторов.
// Диапазон [-1, 1], где 1 = идентичные направления.
// Для нулевого вектора (или несовпадающих длин) возвращает ровно 0.0 —
// это определённый краевой случай, не ошибка.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// FindBestMatch ищет максимум сходства строго выше threshold линейным
// сканом по всем кандидатам. При равенстве выигрывает первый по порядку.
// Возвращает nil если ни один кандидат не превысил порог.
//
// Сложность O(n*d) для n кандидатов размерности d — приемлемо для
// небольших и средних баз профилей; для больших баз это известный
// предел масштабирования.
func FindBestMatch(query []float32, candidates []Candidate, threshold float64) *Match {
	var best *Match
	bestSimilarity := threshold

	for i := range candidates {
		similarity := CosineSimilarity(query, candidates[i].Vector)
		if similarity > bestSimilarity {
			bestSimilarity = similarity
			best = &Match{Candidate: candidates[i], Similarity: similarity}
		}
	}

	if best != nil {
		log.Printf("[Matcher] Match found: %s (similarity=%.3f)", best.SpeakerName, best.Similarity)
	}

	return best
}
