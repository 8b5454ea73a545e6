package config

import (
	"flag"
	"path/filepath"
)

type Config struct {
	DBPath     string
	DataDir    string
	ModelsDir  string
	ModelID    string
	Port       string
	GRPCPipe   string
	VectorDim  int
	AutoAssign float64
	Suggest    float64
	MinMatch   float64
}

func Load() *Config {
	dbPath := flag.String("db", "data/speakers.db", "Path to speaker profile database")
	dataDir := flag.String("data", "data", "Directory for application data")
	modelsDir := flag.String("models", "", "Directory for downloaded models (default: dataDir/models)")
	modelID := flag.String("model", "wespeaker-voxceleb-resnet34", "Speaker embedding model ID")
	port := flag.String("port", "8080", "Server port")
	grpcPipe := flag.String("grpc-pipe", "", "gRPC control endpoint (unix socket path or named pipe, empty to disable)")
	vectorDim := flag.Int("dim", 256, "Voice vector dimension")
	autoAssign := flag.Float64("auto-assign", 0.85, "Similarity threshold for automatic assignment")
	suggest := flag.Float64("suggest", 0.70, "Similarity threshold for suggestions")
	minMatch := flag.Float64("min-match", 0.60, "Minimum similarity to consider a match")
	flag.Parse()

	finalModelsDir := *modelsDir
	if finalModelsDir == "" {
		finalModelsDir = filepath.Join(*dataDir, "models")
	}

	return &Config{
		DBPath:     *dbPath,
		DataDir:    *dataDir,
		ModelsDir:  finalModelsDir,
		ModelID:    *modelID,
		Port:       *port,
		GRPCPipe:   *grpcPipe,
		VectorDim:  *vectorDim,
		AutoAssign: *autoAssign,
		Suggest:    *suggest,
		MinMatch:   *minMatch,
	}
}

// Thresholds возвращает пороги идентификации из флагов
func (c *Config) Thresholds() (autoAssign, suggest, minMatch float64) {
	return c.AutoAssign, c.Suggest, c.MinMatch
}
