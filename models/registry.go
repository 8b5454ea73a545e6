// Package models предоставляет управление моделями speaker embedding
package models

// ModelInfo информация о модели
type ModelInfo struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Size        string   `json:"size"`
	SizeBytes   int64    `json:"sizeBytes"`
	Dim         int      `json:"dim"` // Размерность вектора голоса
	Description string   `json:"description"`
	Languages   []string `json:"languages"`
	Speed       string   `json:"speed"`
	Recommended bool     `json:"recommended,omitempty"`
	DownloadURL string   `json:"downloadUrl,omitempty"`
}

// ModelStatus статус модели на устройстве
type ModelStatus string

const (
	ModelStatusNotDownloaded ModelStatus = "not_downloaded"
	ModelStatusDownloading   ModelStatus = "downloading"
	ModelStatusDownloaded    ModelStatus = "downloaded"
	ModelStatusActive        ModelStatus = "active"
	ModelStatusError         ModelStatus = "error"
)

// ModelState состояние модели с информацией
type ModelState struct {
	ModelInfo
	Status   ModelStatus `json:"status"`
	Progress float64     `json:"progress,omitempty"` // 0-100
	Error    string      `json:"error,omitempty"`
	Path     string      `json:"path,omitempty"` // Путь к скачанной модели
}

// Registry реестр доступных моделей speaker embedding
var Registry = []ModelInfo{
	{
		ID:          "wespeaker-voxceleb-resnet34",
		Name:        "WeSpeaker ResNet34",
		Size:        "26 MB",
		SizeBytes:   26_851_029,
		Dim:         256,
		Description: "Speaker embedding (WeSpeaker ResNet34, VoxCeleb)",
		Languages:   []string{"multi"},
		Speed:       "~40x",
		Recommended: true,
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/speaker-recongition-models/wespeaker_en_voxceleb_resnet34.onnx",
	},
	{
		ID:          "wespeaker-voxceleb-resnet34-lm",
		Name:        "WeSpeaker ResNet34 LM",
		Size:        "26 MB",
		SizeBytes:   26_851_029,
		Dim:         256,
		Description: "Speaker embedding (WeSpeaker ResNet34, large-margin fine-tuned)",
		Languages:   []string{"multi"},
		Speed:       "~40x",
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/speaker-recongition-models/wespeaker_en_voxceleb_resnet34_LM.onnx",
	},
	{
		ID:          "3dspeaker-speech-eres2net",
		Name:        "3D-Speaker ERes2Net",
		Size:        "25 MB",
		SizeBytes:   25_000_000,
		Dim:         512,
		Description: "Speaker embedding (3D-Speaker ERes2Net, Alibaba)",
		Languages:   []string{"multi"},
		Speed:       "~50x",
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/speaker-recongition-models/3dspeaker_speech_eres2net_base_sv_zh-cn_3dspeaker_16k.onnx",
	},
	{
		ID:          "nemo-titanet-large",
		Name:        "NeMo TitaNet Large",
		Size:        "97 MB",
		SizeBytes:   97_000_000,
		Dim:         192,
		Description: "Speaker embedding (NVIDIA NeMo TitaNet)",
		Languages:   []string{"multi"},
		Speed:       "~25x",
		DownloadURL: "https://github.com/k2-fsa/sherpa-onnx/releases/download/speaker-recongition-models/nemo_en_titanet_large.onnx",
	},
}

// GetModelByID возвращает модель по ID
func GetModelByID(id string) *ModelInfo {
	for _, m := range Registry {
		if m.ID == id {
			return &m
		}
	}
	return nil
}

// GetRecommendedModels возвращает рекомендуемые модели
func GetRecommendedModels() []ModelInfo {
	var result []ModelInfo
	for _, m := range Registry {
		if m.Recommended {
			result = append(result, m)
		}
	}
	return result
}

// DefaultModelID возвращает ID модели по умолчанию
func DefaultModelID() string {
	for _, m := range Registry {
		if m.Recommended {
			return m.ID
		}
	}
	return Registry[0].ID
}
