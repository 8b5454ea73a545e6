package ai

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FbankConfig конфигурация вычисления log-mel fbank признаков
type FbankConfig struct {
	SampleRate int
	NMels      int
	HopLength  int // Обычно SampleRate / 100 (10ms)
	WinLength  int // Обычно SampleRate / 40 (25ms)
	NFFT       int
}

// DefaultFbankConfig параметры признаков для WeSpeaker моделей (80 mels, 16kHz)
func DefaultFbankConfig() FbankConfig {
	return FbankConfig{
		SampleRate: 16000,
		NMels:      80,
		HopLength:  160,
		WinLength:  400,
		NFFT:       512,
	}
}

// FbankProcessor вычисляет log-mel fbank признаки для энкодера голоса
type FbankProcessor struct {
	config  FbankConfig
	filters [][]float64
	window  []float64
	fft     *fourier.FFT
}

// NewFbankProcessor создаёт процессор признаков
func NewFbankProcessor(config FbankConfig) *FbankProcessor {
	return &FbankProcessor{
		config:  config,
		filters: buildMelFilters(config.NFFT, config.NMels, config.SampleRate),
		window:  buildHannWindow(config.WinLength),
		fft:     fourier.NewFFT(config.NFFT),
	}
}

// Compute возвращает признаки [numFrames][nMels] (левое выравнивание фреймов)
func (p *FbankProcessor) Compute(samples []float32) ([][]float32, int) {
	numFrames := 1
	if len(samples) >= p.config.WinLength {
		numFrames = (len(samples)-p.config.WinLength)/p.config.HopLength + 1
	}

	features := make([][]float32, numFrames)
	frameData := make([]float64, p.config.NFFT)
	powerSpec := make([]float64, p.config.NFFT/2+1)

	for frame := 0; frame < numFrames; frame++ {
		frameStart := frame * p.config.HopLength

		for i := range frameData {
			frameData[i] = 0
		}
		for i := 0; i < p.config.WinLength; i++ {
			idx := frameStart + i
			if idx < len(samples) {
				frameData[i] = float64(samples[idx]) * p.window[i]
			}
		}

		coeffs := p.fft.Coefficients(nil, frameData)
		for i := 0; i <= p.config.NFFT/2; i++ {
			re := real(coeffs[i])
			im := imag(coeffs[i])
			powerSpec[i] = re*re + im*im
		}

		features[frame] = make([]float32, p.config.NMels)
		for m := 0; m < p.config.NMels; m++ {
			sum := 0.0
			for k := range powerSpec {
				sum += powerSpec[k] * p.filters[m][k]
			}
			if sum < 1e-9 {
				sum = 1e-9
			}
			features[frame][m] = float32(math.Log(sum))
		}
	}

	return features, numFrames
}

// buildMelFilters строит треугольные mel-фильтры (HTK формула, как в torchaudio)
func buildMelFilters(nFFT, nMels, sampleRate int) [][]float64 {
	hzToMel := func(hz float64) float64 {
		return 2595.0 * math.Log10(1.0+hz/700.0)
	}
	melToHz := func(mel float64) float64 {
		return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
	}

	numBins := nFFT/2 + 1
	fMax := float64(sampleRate) / 2.0

	binFreqs := make([]float64, numBins)
	for i := range binFreqs {
		binFreqs[i] = float64(i) * fMax / float64(numBins-1)
	}

	// nMels + 2 опорных точки: левый край, центры, правый край
	mMin := hzToMel(0)
	mMax := hzToMel(fMax)
	points := make([]float64, nMels+2)
	for i := range points {
		points[i] = melToHz(mMin + float64(i)*(mMax-mMin)/float64(nMels+1))
	}

	diffs := make([]float64, nMels+1)
	for i := range diffs {
		diffs[i] = points[i+1] - points[i]
	}

	filters := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		filters[m] = make([]float64, numBins)
		for k, freq := range binFreqs {
			lower := (freq - points[m]) / diffs[m]
			upper := (points[m+2] - freq) / diffs[m+1]
			val := math.Min(lower, upper)
			if val < 0 {
				val = 0
			}
			filters[m][k] = val
		}
	}

	return filters
}

// buildHannWindow строит окно Ханна
func buildHannWindow(size int) []float64 {
	window := make([]float64, size)
	for i := range window {
		window[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(size-1)))
	}
	return window
}
