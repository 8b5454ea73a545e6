package audio

import (
	"fmt"
	"log"
	"os"

	"github.com/braheezy/shine-mp3/pkg/mp3"
)

// WriteSampleClip кодирует моно float32 сэмплы в MP3 файл через shine-mp3
// (чистый Go, без FFmpeg). Используется для коротких образцов голоса.
func WriteSampleClip(filePath string, samples []float32, sampleRate int) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := mp3.NewEncoder(sampleRate, 1)

	// Shine кодирует блоками по 1152 сэмплов на канал,
	// дополняем хвост нулями до границы блока
	pcm := make([]int16, 0, len(samples)+1152)
	for _, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		pcm = append(pcm, int16(s*32767))
	}
	for len(pcm)%1152 != 0 {
		pcm = append(pcm, 0)
	}

	if err := encoder.Write(file, pcm); err != nil {
		return fmt.Errorf("failed to encode MP3: %w", err)
	}

	log.Printf("[Audio] Sample clip saved: %s (%d samples @ %d Hz)", filePath, len(samples), sampleRate)
	return nil
}
