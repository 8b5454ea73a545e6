package ai

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"voiceid/audio"
)

// SherpaExtractorConfig конфигурация sherpa-onnx экстрактора embeddings
type SherpaExtractorConfig struct {
	ModelPath  string // Путь к ONNX модели (WeSpeaker, 3D-Speaker)
	NumThreads int
	Provider   string // ONNX provider: cpu, cuda, coreml, auto
}

// DefaultSherpaExtractorConfig конфигурация по умолчанию с автоопределением provider
func DefaultSherpaExtractorConfig(modelPath string) SherpaExtractorConfig {
	return SherpaExtractorConfig{
		ModelPath:  modelPath,
		NumThreads: 2,
		Provider:   "auto",
	}
}

// detectBestProvider определяет лучший provider для текущей платформы
func detectBestProvider() string {
	// На macOS с Apple Silicon предпочитаем CoreML
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return "coreml"
	}
	// По умолчанию CPU: cuda только по явному запросу
	return "cpu"
}

// SherpaExtractor извлекает embeddings через sherpa-onnx SpeakerEmbeddingExtractor
type SherpaExtractor struct {
	config    SherpaExtractorConfig
	extractor *sherpa.SpeakerEmbeddingExtractor
	mu        sync.Mutex
}

// NewSherpaExtractor создаёт экстрактор на базе sherpa-onnx.
// Если запрошенный provider не инициализируется, откатывается на CPU.
func NewSherpaExtractor(config SherpaExtractorConfig) (*SherpaExtractor, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("embedding model not found: %s", config.ModelPath)
	}

	provider := config.Provider
	if provider == "auto" || provider == "" {
		provider = detectBestProvider()
	}

	sherpaConfig := sherpa.SpeakerEmbeddingExtractorConfig{
		Model:      config.ModelPath,
		NumThreads: config.NumThreads,
		Debug:      0,
		Provider:   provider,
	}

	extractor := sherpa.NewSpeakerEmbeddingExtractor(&sherpaConfig)
	if extractor == nil {
		if provider != "cpu" {
			log.Printf("[Extractor] %s provider failed, falling back to CPU", provider)
			sherpaConfig.Provider = "cpu"
			extractor = sherpa.NewSpeakerEmbeddingExtractor(&sherpaConfig)
			provider = "cpu"
		}
		if extractor == nil {
			return nil, fmt.Errorf("failed to create speaker embedding extractor (model=%s)", config.ModelPath)
		}
	}

	config.Provider = provider
	log.Printf("[Extractor] Sherpa extractor ready: model=%s provider=%s dim=%d",
		config.ModelPath, provider, extractor.Dim())

	return &SherpaExtractor{
		config:    config,
		extractor: extractor,
	}, nil
}

// Extract читает сегмент аудиофайла и возвращает нормализованный embedding
func (e *SherpaExtractor) Extract(audioPath string, start, end float64) ([]float32, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, &ExtractionError{Path: audioPath, Err: err}
	}

	samples, sampleRate, err := audio.ReadSegment(audioPath, start, end)
	if err != nil {
		return nil, &ExtractionError{Path: audioPath, Err: err}
	}
	if len(samples) == 0 {
		return nil, extractionErr(audioPath, "empty audio segment [%g, %g]", start, end)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.extractor == nil {
		return nil, extractionErr(audioPath, "extractor is closed")
	}

	stream := e.extractor.CreateStream()
	defer sherpa.DeleteOnlineStream(stream)

	stream.AcceptWaveform(sampleRate, samples)
	stream.InputFinished()

	embedding := e.extractor.Compute(stream)
	if len(embedding) == 0 {
		return nil, extractionErr(audioPath, "model returned empty embedding")
	}

	return normalizeEmbedding(embedding), nil
}

// Dim возвращает размерность векторов модели
func (e *SherpaExtractor) Dim() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.extractor == nil {
		return 0
	}
	return e.extractor.Dim()
}

// Provider возвращает фактически используемый ONNX provider
func (e *SherpaExtractor) Provider() string {
	return e.config.Provider
}

// Close освобождает ресурсы модели
func (e *SherpaExtractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.extractor != nil {
		sherpa.DeleteSpeakerEmbeddingExtractor(e.extractor)
		e.extractor = nil
	}
	log.Printf("[Extractor] Sherpa extractor closed")
}
