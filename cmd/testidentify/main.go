// Тест идентификации говорящих по аудиофайлам
//
// Запуск:
//
//	go run ./cmd/testidentify -model models/wespeaker.onnx -mode register -name "Alice" -file alice.wav
//	go run ./cmd/testidentify -model models/wespeaker.onnx -mode identify -file unknown.wav
//	go run ./cmd/testidentify -model models/wespeaker.onnx -mode verify -file clip.wav -speaker <id> -correct
//	go run ./cmd/testidentify -mode list
//
// База профилей сохраняется между запусками (-db, по умолчанию /tmp/voiceid_test.db),
// так что register и identify можно запускать последовательно.
package main

import (
	"flag"
	"log"

	"voiceid/ai"
	"voiceid/internal/service"
	"voiceid/speaker"
)

func main() {
	modelPath := flag.String("model", "", "путь к ONNX модели speaker embeddings")
	dbPath := flag.String("db", "/tmp/voiceid_test.db", "путь к базе профилей")
	mode := flag.String("mode", "identify", "режим: register | identify | verify | list | stats")
	name := flag.String("name", "", "имя говорящего (для register)")
	file := flag.String("file", "", "путь к аудиофайлу (wav/mp3)")
	start := flag.Float64("start", 0, "начало сегмента, сек")
	end := flag.Float64("end", 0, "конец сегмента, сек (0 = до конца файла)")
	speakerID := flag.String("speaker", "", "ID говорящего (для verify/stats)")
	correct := flag.Bool("correct", true, "идентификация была верной (для verify)")
	flag.Parse()

	var extractor ai.Extractor
	if *modelPath != "" {
		ex, err := ai.NewSherpaExtractor(ai.DefaultSherpaExtractorConfig(*modelPath))
		if err != nil {
			log.Fatalf("Ошибка загрузки модели: %v", err)
		}
		defer ex.Close()
		extractor = ex
	}

	dim := 256
	if extractor != nil {
		dim = extractor.Dim()
	}

	store, err := speaker.Open(*dbPath, dim)
	if err != nil {
		log.Fatalf("Ошибка открытия базы: %v", err)
	}
	defer store.Close()

	svc := service.NewIdentificationService(store, extractor, "/tmp/voiceid_samples")

	switch *mode {
	case "register":
		requireExtractor(extractor)
		if *name == "" || *file == "" {
			log.Fatal("register требует -name и -file")
		}
		sp, err := svc.Register(service.RegisterRequest{
			Name:      *name,
			AudioPath: *file,
			Start:     *start,
			End:       *end,
		})
		if err != nil {
			log.Fatalf("Ошибка регистрации: %v", err)
		}
		log.Printf("Профиль создан: %s (%s)", sp.Name, sp.ID)

	case "identify":
		requireExtractor(extractor)
		if *file == "" {
			log.Fatal("identify требует -file")
		}
		dec, err := svc.Identify(service.IdentifyRequest{
			AudioPath: *file,
			Start:     *start,
			End:       *end,
		})
		if err != nil {
			log.Fatalf("Ошибка идентификации: %v", err)
		}
		log.Println("=== Результат идентификации ===")
		log.Printf("Уровень:    %s", dec.Tier)
		if dec.SpeakerID != "" {
			log.Printf("Говорящий:  %s (%s)", dec.SpeakerName, dec.SpeakerID)
			log.Printf("Similarity: %.4f", dec.Similarity)
			log.Printf("Confidence: %.2f", dec.Confidence)
		}
		if dec.Identified {
			log.Printf("Запись идентификации: %s", dec.RecordID)
		}

	case "verify":
		requireExtractor(extractor)
		if *speakerID == "" || *file == "" {
			log.Fatal("verify требует -speaker и -file")
		}
		result, err := svc.VerifyFromAudio(*file, *start, *end, speaker.Feedback{
			SpeakerID:  *speakerID,
			Correct:    *correct,
			SourceFile: *file,
		})
		if err != nil {
			log.Fatalf("Ошибка верификации: %v", err)
		}
		log.Printf("Эталонный embedding: %s (confidence %.2f)", result.EmbeddingID, result.Confidence)
		log.Printf("Скорректировано embeddings: %d", result.Adjusted)

	case "list":
		speakers, err := store.ListSpeakers()
		if err != nil {
			log.Fatalf("Ошибка списка: %v", err)
		}
		log.Printf("=== Профили (%d) ===", len(speakers))
		for _, sp := range speakers {
			log.Printf("  %s  %-20s embeddings=%d", sp.ID, sp.Name, sp.EmbeddingCount)
		}

	case "stats":
		if *speakerID == "" {
			log.Fatal("stats требует -speaker")
		}
		stats, err := svc.Statistics(*speakerID)
		if err != nil {
			log.Fatalf("Ошибка статистики: %v", err)
		}
		log.Println("=== Статистика ===")
		log.Printf("Embeddings:         %d", stats.EmbeddingCount)
		log.Printf("Средняя confidence: %.2f", stats.AvgConfidence)
		log.Printf("Диапазон:           %.2f - %.2f", stats.MinConfidence, stats.MaxConfidence)

	default:
		log.Fatalf("Неизвестный режим: %s", *mode)
	}
}

func requireExtractor(ex ai.Extractor) {
	if ex == nil {
		log.Fatal("Для этого режима нужна модель: укажите -model")
	}
}
