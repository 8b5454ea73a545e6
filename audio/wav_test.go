package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeTestWAV создаёт WAV файл с синусоидой заданной длительности
func writeTestWAV(t *testing.T, path string, sampleRate int, seconds float64) []float32 {
	t.Helper()

	n := int(float64(sampleRate) * seconds)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}

	w, err := NewWAVWriter(path, sampleRate, 1)
	if err != nil {
		t.Fatalf("wav writer: %v", err)
	}
	if err := w.Write(samples); err != nil {
		t.Fatalf("write samples: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return samples
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	written := writeTestWAV(t, path, 16000, 0.5)

	samples, rate, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	if rate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", rate)
	}
	if len(samples) != len(written) {
		t.Fatalf("expected %d samples, got %d", len(written), len(samples))
	}
	// Квантование int16 даёт погрешность до ~1/32768
	for i := 0; i < len(samples); i += 1000 {
		if diff := math.Abs(float64(samples[i] - written[i])); diff > 0.001 {
			t.Errorf("sample %d differs by %.5f", i, diff)
		}
	}
}

func TestReadWAVMalformedFmtChunk(t *testing.T) {
	// RIFF заголовок + fmt чанк короче 16 байт
	short := []byte("RIFF\x24\x00\x00\x00WAVE" + "fmt \x04\x00\x00\x00\x01\x00\x00\x00")
	shortPath := filepath.Join(t.TempDir(), "short_fmt.wav")
	if err := os.WriteFile(shortPath, short, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, _, err := ReadWAV(shortPath); err == nil {
		t.Error("expected error for truncated fmt chunk")
	}

	// Корректный размер fmt, но ноль каналов
	zeroCh := []byte("RIFF\x28\x00\x00\x00WAVE" +
		"fmt \x10\x00\x00\x00" + // размер 16
		"\x01\x00" + // PCM
		"\x00\x00" + // channels = 0
		"\x80\x3e\x00\x00" + // 16000 Hz
		"\x00\x7d\x00\x00" + // byte rate
		"\x02\x00" + // block align
		"\x10\x00") // 16 бит
	zeroPath := filepath.Join(t.TempDir(), "zero_channels.wav")
	if err := os.WriteFile(zeroPath, zeroCh, 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, _, err := ReadWAV(zeroPath); err == nil {
		t.Error("expected error for zero channels")
	}
}

func TestReadWAVMissingFile(t *testing.T) {
	if _, _, err := ReadWAV(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReadSegmentClamping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	writeTestWAV(t, path, 16000, 1.0)

	// end <= 0 означает до конца файла
	full, rate, err := ReadSegment(path, 0, 0)
	if err != nil {
		t.Fatalf("read full: %v", err)
	}
	if rate != 16000 || len(full) != 16000 {
		t.Fatalf("expected 16000 samples @ 16000 Hz, got %d @ %d", len(full), rate)
	}

	// Сегмент за пределами длительности обрезается по границе файла
	tail, _, err := ReadSegment(path, 0.5, 10.0)
	if err != nil {
		t.Fatalf("read tail: %v", err)
	}
	if len(tail) != 8000 {
		t.Errorf("expected 8000 samples in tail, got %d", len(tail))
	}

	mid, _, err := ReadSegment(path, 0.25, 0.75)
	if err != nil {
		t.Fatalf("read mid: %v", err)
	}
	if len(mid) != 8000 {
		t.Errorf("expected 8000 samples in middle segment, got %d", len(mid))
	}
}

func TestReadSegmentInvalidRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.wav")
	writeTestWAV(t, path, 16000, 1.0)

	if _, _, err := ReadSegment(path, 2.0, 3.0); err == nil {
		t.Error("expected error when segment starts past end of file")
	}
}

func TestReadSegmentUnsupportedFormat(t *testing.T) {
	if _, _, err := ReadSegment("voice.flac", 0, 0); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestResample(t *testing.T) {
	src := make([]float32, 48000)
	for i := range src {
		src[i] = float32(math.Sin(2 * math.Pi * 440 * float64(i) / 48000))
	}

	out := Resample(src, 48000, 16000)
	if len(out) != 16000 {
		t.Errorf("expected 16000 samples, got %d", len(out))
	}

	// Совпадающие частоты — без изменений
	same := Resample(src, 16000, 16000)
	if len(same) != len(src) {
		t.Errorf("identity resample changed length: %d", len(same))
	}
	for i := range same {
		if same[i] != src[i] {
			t.Fatalf("identity resample changed sample %d", i)
		}
	}
}
