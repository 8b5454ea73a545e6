package main

import (
	"log"
	"path/filepath"

	"voiceid/ai"
	"voiceid/internal/api"
	"voiceid/internal/config"
	"voiceid/internal/service"
	"voiceid/models"
	"voiceid/speaker"
)

func main() {
	log.Println("VoiceID backend starting...")

	cfg := config.Load()
	log.Printf("Database: %s", cfg.DBPath)
	log.Printf("Data directory: %s", cfg.DataDir)
	log.Printf("Models directory: %s", cfg.ModelsDir)

	modelMgr, err := models.NewManager(cfg.ModelsDir)
	if err != nil {
		log.Fatalf("Failed to init model manager: %v", err)
	}

	// Экстрактор опционален: без модели сервер обслуживает профили
	// и скачивание моделей, но identify/register вернут ошибку
	var extractor ai.Extractor
	dim := cfg.VectorDim

	if info := models.GetModelByID(cfg.ModelID); info == nil {
		log.Printf("Warning: unknown model ID %q", cfg.ModelID)
	} else if !modelMgr.IsModelDownloaded(cfg.ModelID) {
		log.Printf("Model %s is not downloaded yet, identification disabled", cfg.ModelID)
		log.Printf("Download it via the frontend or place the file at %s", modelMgr.GetModelPath(cfg.ModelID))
	} else {
		ex, err := ai.NewSherpaExtractor(ai.DefaultSherpaExtractorConfig(modelMgr.GetModelPath(cfg.ModelID)))
		if err != nil {
			log.Printf("Warning: failed to load embedding model: %v", err)
		} else {
			defer ex.Close()
			extractor = ex
			dim = info.Dim
			if err := modelMgr.SetActiveModel(cfg.ModelID); err != nil {
				log.Printf("Warning: failed to mark model active: %v", err)
			}
			log.Printf("Embedding model loaded: %s (dim=%d, provider=%s)", cfg.ModelID, dim, ex.Provider())
		}
	}

	store, err := speaker.Open(cfg.DBPath, dim)
	if err != nil {
		log.Fatalf("Failed to open profile store: %v", err)
	}
	defer store.Close()

	identSvc := service.NewIdentificationService(store, extractor, filepath.Join(cfg.DataDir, "samples"))
	autoAssign, suggest, minMatch := cfg.Thresholds()
	identSvc.Thresholds = speaker.Thresholds{
		AutoAssign: autoAssign,
		Suggest:    suggest,
		MinMatch:   minMatch,
	}

	server := api.NewServer(cfg, store, modelMgr, identSvc)
	server.Start()
}
