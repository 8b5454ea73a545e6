// Package ai предоставляет извлечение голосовых embeddings из аудио.
// Ядро идентификации трактует вектор как непрозрачный числовой массив
// фиксированной размерности и не интерпретирует его содержимое.
package ai

import (
	"fmt"
	"math"
)

// Extractor извлекает голосовой embedding из сегмента аудиофайла.
// start/end в секундах; end <= 0 означает "до конца файла".
type Extractor interface {
	Extract(audioPath string, start, end float64) ([]float32, error)
	Dim() int
	Close()
}

// ExtractionError ошибка извлечения embedding: отсутствующий файл или
// сбой модели. Не ретраится на этом уровне, пробрасывается вызывающему.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func extractionErr(path string, format string, args ...any) error {
	return &ExtractionError{Path: path, Err: fmt.Errorf(format, args...)}
}

// normalizeEmbedding нормализует вектор до единичной длины
func normalizeEmbedding(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq < 1e-12 {
		return v
	}

	norm := float32(1.0 / math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}
