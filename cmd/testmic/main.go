// Тест идентификации говорящего с микрофона
//
// Записывает несколько секунд с микрофона и либо регистрирует профиль,
// либо идентифицирует говорящего среди сохранённых профилей.
//
// Запуск:
//
//	go run ./cmd/testmic -model models/wespeaker.onnx -mode enroll -name "Alice"
//	go run ./cmd/testmic -model models/wespeaker.onnx -mode identify
package main

import (
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voiceid/ai"
	"voiceid/audio"
	"voiceid/internal/service"
	"voiceid/speaker"

	"github.com/gen2brain/malgo"
)

const (
	captureRate = 16000
	channels    = 1
)

func main() {
	modelPath := flag.String("model", "", "путь к ONNX модели speaker embeddings")
	dbPath := flag.String("db", "/tmp/voiceid_test.db", "путь к базе профилей")
	mode := flag.String("mode", "identify", "режим: enroll | identify")
	name := flag.String("name", "", "имя говорящего (для enroll)")
	seconds := flag.Float64("seconds", 5, "длительность записи, сек")
	flag.Parse()

	if *modelPath == "" {
		log.Fatal("Укажите модель: -model путь/к/модели.onnx")
	}
	if *mode == "enroll" && *name == "" {
		log.Fatal("enroll требует -name")
	}

	log.Println("=== Тест идентификации с микрофона ===")
	log.Printf("Режим: %s, запись %.0f сек @ %d Hz", *mode, *seconds, captureRate)

	wavPath, err := recordClip(*seconds)
	if err != nil {
		log.Fatalf("Ошибка записи: %v", err)
	}
	defer os.Remove(wavPath)

	extractor, err := ai.NewSherpaExtractor(ai.DefaultSherpaExtractorConfig(*modelPath))
	if err != nil {
		log.Fatalf("Ошибка загрузки модели: %v", err)
	}
	defer extractor.Close()

	store, err := speaker.Open(*dbPath, extractor.Dim())
	if err != nil {
		log.Fatalf("Ошибка открытия базы: %v", err)
	}
	defer store.Close()

	svc := service.NewIdentificationService(store, extractor, "/tmp/voiceid_samples")

	switch *mode {
	case "enroll":
		sp, err := svc.Register(service.RegisterRequest{
			Name:       *name,
			AudioPath:  wavPath,
			SaveSample: true,
		})
		if err != nil {
			log.Fatalf("Ошибка регистрации: %v", err)
		}
		log.Printf("Профиль создан: %s (%s)", sp.Name, sp.ID)

	case "identify":
		dec, err := svc.Identify(service.IdentifyRequest{AudioPath: wavPath})
		if err != nil {
			log.Fatalf("Ошибка идентификации: %v", err)
		}
		log.Println("=== Результат ===")
		log.Printf("Уровень: %s", dec.Tier)
		if dec.SpeakerID != "" {
			log.Printf("Говорящий: %s (similarity %.4f, confidence %.2f)",
				dec.SpeakerName, dec.Similarity, dec.Confidence)
		} else {
			log.Println("Говорящий не распознан")
		}

	default:
		log.Fatalf("Неизвестный режим: %s", *mode)
	}
}

// recordClip записывает с микрофона заданное количество секунд в WAV файл
func recordClip(seconds float64) (string, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return "", err
	}
	defer ctx.Uninit()
	defer ctx.Free()

	wavPath := "/tmp/voiceid_mic.wav"
	writer, err := audio.NewWAVWriter(wavPath, captureRate, channels)
	if err != nil {
		return "", err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = channels
	deviceConfig.SampleRate = captureRate
	deviceConfig.Alsa.NoMMap = 1

	targetSamples := int64(seconds * captureRate)
	done := make(chan struct{})
	var closed bool

	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		sampleCount := int(framecount) * channels
		if len(pInputSamples) != sampleCount*4 {
			return
		}

		samples := make([]float32, sampleCount)
		for i := 0; i < sampleCount; i++ {
			bits := uint32(pInputSamples[i*4]) | uint32(pInputSamples[i*4+1])<<8 |
				uint32(pInputSamples[i*4+2])<<16 | uint32(pInputSamples[i*4+3])<<24
			samples[i] = math.Float32frombits(bits)
		}

		if err := writer.Write(samples); err != nil {
			return
		}
		if writer.SamplesWritten() >= targetSamples && !closed {
			closed = true
			close(done)
		}
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		return "", err
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return "", err
	}

	log.Println("Говорите в микрофон...")

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-done:
	case <-stopChan:
		log.Println("Прервано")
	case <-time.After(time.Duration(seconds+10) * time.Second):
		log.Println("Таймаут записи")
	}

	device.Stop()
	if err := writer.Close(); err != nil {
		return "", err
	}

	log.Printf("Записано %.1f сек -> %s",
		float64(writer.SamplesWritten())/captureRate, wavPath)
	return wavPath, nil
}
