package audio

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
)

// ReadSegment читает фрагмент [start, end] (секунды) из аудиофайла и
// возвращает моно float32 сэмплы с исходной частотой дискретизации.
// end <= 0 означает "до конца файла". Формат определяется по расширению.
func ReadSegment(path string, start, end float64) ([]float32, int, error) {
	var (
		samples    []float32
		sampleRate int
		err        error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		samples, sampleRate, err = ReadWAV(path)
	case ".mp3":
		var reader *MP3Reader
		reader, err = NewMP3Reader(path)
		if err != nil {
			return nil, 0, err
		}
		defer reader.Close()
		sampleRate = reader.SampleRate()
		samples, err = reader.ReadAllMono()
	default:
		return nil, 0, fmt.Errorf("unsupported audio format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, 0, err
	}

	startSample := int(start * float64(sampleRate))
	endSample := len(samples)
	if end > 0 {
		endSample = int(end * float64(sampleRate))
	}

	if startSample < 0 {
		startSample = 0
	}
	if endSample > len(samples) {
		endSample = len(samples)
	}
	if startSample >= endSample {
		return nil, 0, fmt.Errorf("invalid segment: start=%.2f, end=%.2f (file %.2f sec)",
			start, end, float64(len(samples))/float64(sampleRate))
	}

	segment := make([]float32, endSample-startSample)
	copy(segment, samples[startSample:endSample])

	log.Printf("[Audio] ReadSegment: %s [%.1f-%.1f sec] -> %d samples @ %d Hz",
		filepath.Base(path), start, float64(endSample)/float64(sampleRate), len(segment), sampleRate)

	return segment, sampleRate, nil
}
