package ai

import (
	"fmt"
	"log"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"voiceid/audio"
)

// OnnxEncoderConfig конфигурация прямого ONNX энкодера голоса
type OnnxEncoderConfig struct {
	ModelPath  string
	Dim        int
	SampleRate int
}

// DefaultOnnxEncoderConfig возвращает стандартную конфигурацию для WeSpeaker ResNet34
func DefaultOnnxEncoderConfig(modelPath string) OnnxEncoderConfig {
	return OnnxEncoderConfig{
		ModelPath:  modelPath,
		Dim:        256,
		SampleRate: 16000,
	}
}

// OnnxEncoder извлекает векторы голоса напрямую через ONNX Runtime,
// без sherpa-onnx. Требует libonnxruntime в системе.
type OnnxEncoder struct {
	config      OnnxEncoderConfig
	session     *ort.DynamicAdvancedSession
	fbank       *FbankProcessor
	mu          sync.Mutex
	initialized bool
}

// NewOnnxEncoder создаёт энкодер и загружает модель
func NewOnnxEncoder(config OnnxEncoderConfig) (*OnnxEncoder, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, extractionErr(config.ModelPath, "model file not found")
	}

	fbankConfig := DefaultFbankConfig()
	fbankConfig.SampleRate = config.SampleRate

	encoder := &OnnxEncoder{
		config: config,
		fbank:  NewFbankProcessor(fbankConfig),
	}

	if err := initONNXRuntime(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}

	if err := encoder.loadModel(); err != nil {
		return nil, err
	}

	return encoder, nil
}

func (e *OnnxEncoder) loadModel() error {
	inputInfo, outputInfo, err := ort.GetInputOutputInfo(e.config.ModelPath)
	if err != nil {
		return fmt.Errorf("failed to get model info: %w", err)
	}

	inputNames := make([]string, len(inputInfo))
	for i, info := range inputInfo {
		inputNames[i] = info.Name
	}
	outputNames := make([]string, len(outputInfo))
	for i, info := range outputInfo {
		outputNames[i] = info.Name
	}

	log.Printf("[Encoder] Model inputs: %v, outputs: %v", inputNames, outputNames)

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(
		e.config.ModelPath,
		inputNames,
		outputNames,
		options,
	)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session: %w", err)
	}

	e.session = session
	e.initialized = true
	return nil
}

// Extract читает сегмент аудио и возвращает нормализованный вектор голоса
func (e *OnnxEncoder) Extract(audioPath string, start, end float64) ([]float32, error) {
	samples, sampleRate, err := audio.ReadSegment(audioPath, start, end)
	if err != nil {
		return nil, extractionErr(audioPath, "%w", err)
	}
	if sampleRate != e.config.SampleRate {
		samples = audio.Resample(samples, sampleRate, e.config.SampleRate)
	}
	return e.Encode(samples)
}

// Encode извлекает вектор голоса из PCM сэмплов (SampleRate, mono)
func (e *OnnxEncoder) Encode(samples []float32) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, fmt.Errorf("encoder not initialized")
	}

	// Минимум 100ms аудио для осмысленного вектора
	if len(samples) < e.config.SampleRate/10 {
		return nil, fmt.Errorf("audio too short: %d samples", len(samples))
	}

	features, numFrames := e.fbank.Compute(samples)

	// WeSpeaker ONNX принимает [batch, num_frames, n_mels]
	nMels := len(features[0])
	flatInput := make([]float32, numFrames*nMels)
	for t := 0; t < numFrames; t++ {
		copy(flatInput[t*nMels:], features[t])
	}

	inputShape := ort.NewShape(1, int64(numFrames), int64(nMels))
	inputTensor, err := ort.NewTensor(inputShape, flatInput)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	outputTensor := outputs[0].(*ort.Tensor[float32])
	embedding := outputTensor.GetData()

	// Копируем, так как outputTensor будет уничтожен
	result := make([]float32, len(embedding))
	copy(result, embedding)

	return normalizeEmbedding(result), nil
}

// Dim возвращает размерность вектора
func (e *OnnxEncoder) Dim() int {
	return e.config.Dim
}

// Close освобождает ONNX сессию
func (e *OnnxEncoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	e.initialized = false
}

// ONNX Runtime глобальная инициализация
var (
	onnxInitialized bool
	onnxInitMu      sync.Mutex
)

func initONNXRuntime() error {
	onnxInitMu.Lock()
	defer onnxInitMu.Unlock()

	if onnxInitialized {
		return nil
	}

	// Проверяем переменную окружения для пути к библиотеке
	libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")

	// Если не задана переменная окружения, ищем в стандартных местах
	if libPath == "" {
		searchPaths := []string{
			// В Resources директории приложения (для .app bundle)
			"../Resources/libonnxruntime.dylib",
			// Рядом с исполняемым файлом
			"./libonnxruntime.dylib",
			"./libonnxruntime.so",
			// Системные пути
			"/usr/local/lib/libonnxruntime.so",
			"/usr/local/lib/libonnxruntime.dylib",
		}

		for _, path := range searchPaths {
			if _, err := os.Stat(path); err == nil {
				libPath = path
				break
			}
		}
	}

	if libPath != "" {
		log.Printf("[Encoder] Using ONNX Runtime library: %s", libPath)
		ort.SetSharedLibraryPath(libPath)
	} else {
		log.Println("[Encoder] ONNX Runtime library not found, direct encoder unavailable")
		return fmt.Errorf("ONNX Runtime library not found")
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return err
	}

	onnxInitialized = true
	log.Println("[Encoder] ONNX Runtime initialized successfully")
	return nil
}
