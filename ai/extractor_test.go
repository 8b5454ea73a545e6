package ai

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestExtractionErrWrapsCause(t *testing.T) {
	cause := errors.New("decode failed")
	err := extractionErr("clip.wav", "%w", cause)

	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected *ExtractionError, got %T", err)
	}
	if exErr.Path != "clip.wav" {
		t.Errorf("expected path clip.wav, got %q", exErr.Path)
	}
	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to survive errors.Is")
	}
}

func TestNewOnnxEncoderMissingModel(t *testing.T) {
	_, err := NewOnnxEncoder(DefaultOnnxEncoderConfig("/nonexistent/model.onnx"))
	if err == nil {
		t.Fatal("expected error for missing model file")
	}

	var exErr *ExtractionError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected *ExtractionError, got %T: %v", err, err)
	}
	if exErr.Path != "/nonexistent/model.onnx" {
		t.Errorf("unexpected path in error: %q", exErr.Path)
	}
	if !strings.Contains(err.Error(), "model file not found") {
		t.Errorf("unexpected error text: %v", err)
	}
}

func TestNormalizeEmbedding(t *testing.T) {
	v := normalizeEmbedding([]float32{3, 4})
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("expected unit norm, got %.6f", math.Sqrt(norm))
	}

	// Нулевой вектор остаётся нулевым
	zero := normalizeEmbedding([]float32{0, 0, 0})
	for i, x := range zero {
		if x != 0 {
			t.Errorf("zero vector changed at %d: %g", i, x)
		}
	}
}
