// Package audio читает и пишет аудиофайлы (WAV, MP3) чистым Go, без FFmpeg.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// ReadWAV читает PCM16 WAV файл целиком и возвращает моно float32 сэмплы
// и исходную частоту дискретизации. Многоканальное аудио сводится в моно
// усреднением каналов.
func ReadWAV(path string) ([]float32, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open WAV file: %w", err)
	}
	defer file.Close()

	var riff [12]byte
	if _, err := io.ReadFull(file, riff[:]); err != nil {
		return nil, 0, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a WAV file: %s", path)
	}

	var (
		sampleRate    int
		channels      int
		bitsPerSample int
		haveFmt       bool
	)

	// Идём по чанкам до data, пропуская незнакомые (LIST, fact и т.д.)
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(file, chunkHeader[:]); err != nil {
			return nil, 0, fmt.Errorf("failed to read chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, fmt.Errorf("truncated fmt chunk: %d bytes", chunkSize)
			}
			fmtData := make([]byte, chunkSize)
			if _, err := io.ReadFull(file, fmtData); err != nil {
				return nil, 0, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			audioFormat := binary.LittleEndian.Uint16(fmtData[0:2])
			if audioFormat != 1 {
				return nil, 0, fmt.Errorf("unsupported WAV format %d (only PCM)", audioFormat)
			}
			channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			if channels == 0 {
				return nil, 0, fmt.Errorf("invalid fmt chunk: zero channels")
			}
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, 0, fmt.Errorf("data chunk before fmt chunk")
			}
			if bitsPerSample != 16 {
				return nil, 0, fmt.Errorf("unsupported bit depth %d (only 16-bit PCM)", bitsPerSample)
			}
			pcm := make([]byte, chunkSize)
			n, err := io.ReadFull(file, pcm)
			if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
				return nil, 0, fmt.Errorf("failed to read PCM data: %w", err)
			}
			pcm = pcm[:n]

			frameSize := 2 * channels
			numFrames := len(pcm) / frameSize
			mono := make([]float32, numFrames)
			for i := 0; i < numFrames; i++ {
				var sum float32
				for c := 0; c < channels; c++ {
					s := int16(binary.LittleEndian.Uint16(pcm[i*frameSize+c*2:]))
					sum += float32(s) / 32768.0
				}
				mono[i] = sum / float32(channels)
			}
			return mono, sampleRate, nil

		default:
			// Чанки выровнены по 2 байта
			skip := int64(chunkSize)
			if skip%2 == 1 {
				skip++
			}
			if _, err := file.Seek(skip, io.SeekCurrent); err != nil {
				return nil, 0, fmt.Errorf("failed to skip chunk %q: %w", chunkID, err)
			}
		}
	}
}

// WAVWriter потоковый писатель PCM16 WAV файлов
type WAVWriter struct {
	file           *os.File
	filePath       string
	sampleRate     int
	channels       int
	samplesWritten int64
	mu             sync.Mutex
}

// NewWAVWriter создаёт новый WAV writer (16-bit PCM)
func NewWAVWriter(filePath string, sampleRate, channels int) (*WAVWriter, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create WAV file: %w", err)
	}

	w := &WAVWriter{
		file:       file,
		filePath:   filePath,
		sampleRate: sampleRate,
		channels:   channels,
	}

	// Записываем placeholder header, финальный размер проставит Close
	if err := w.writeHeader(); err != nil {
		file.Close()
		return nil, err
	}

	return w, nil
}

func (w *WAVWriter) writeHeader() error {
	w.file.Seek(0, io.SeekStart)

	const bitsPerSample = 16
	byteRate := w.sampleRate * w.channels * bitsPerSample / 8
	blockAlign := w.channels * bitsPerSample / 8
	dataSize := uint32(w.samplesWritten * 2)

	w.file.WriteString("RIFF")
	binary.Write(w.file, binary.LittleEndian, uint32(36+dataSize))
	w.file.WriteString("WAVE")

	w.file.WriteString("fmt ")
	binary.Write(w.file, binary.LittleEndian, uint32(16))
	binary.Write(w.file, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(w.file, binary.LittleEndian, uint16(w.channels))
	binary.Write(w.file, binary.LittleEndian, uint32(w.sampleRate))
	binary.Write(w.file, binary.LittleEndian, uint32(byteRate))
	binary.Write(w.file, binary.LittleEndian, uint16(blockAlign))
	binary.Write(w.file, binary.LittleEndian, uint16(bitsPerSample))

	w.file.WriteString("data")
	binary.Write(w.file, binary.LittleEndian, dataSize)

	return nil
}

// Write записывает float32 сэмплы (конвертирует в PCM16 с clamping)
func (w *WAVWriter) Write(samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		if err := binary.Write(w.file, binary.LittleEndian, int16(s*32767)); err != nil {
			return err
		}
		w.samplesWritten++
	}

	return nil
}

// SamplesWritten возвращает количество записанных сэмплов
func (w *WAVWriter) SamplesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.samplesWritten
}

// FilePath возвращает путь к файлу
func (w *WAVWriter) FilePath() string {
	return w.filePath
}

// Close обновляет header и закрывает файл
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writeHeader(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
