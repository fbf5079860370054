package engine

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/loqalabs/loqa-jtalk/internal/htsvoice"
)

const (
	mockFramesPerLabel = 20
	mockBasePitchHz    = 140.0
	mockAmplitude      = 8000.0
	// five minutes at 48 kHz
	mockMaxSamples = 5 * 60 * 48000
)

// Mock is a deterministic in-process engine. It renders one tone per
// speakable label so that every parameter visibly shapes the output.
type Mock struct {
	*State
}

func NewMock(h htsvoice.Header) *Mock {
	return &Mock{State: NewState(h)}
}

func (m *Mock) Synthesize(ctx context.Context, labels []string) ([]float64, error) {
	p := m.Params()
	if p.SamplingFrequency < 1 {
		return nil, fmt.Errorf("sampling frequency must be >= 1, got %d", p.SamplingFrequency)
	}
	if p.FramePeriod < 1 {
		return nil, fmt.Errorf("frame period must be >= 1, got %d", p.FramePeriod)
	}
	if !(p.SpeechSpeedRate > 0) {
		return nil, fmt.Errorf("speech speed rate must be positive, got %v", p.SpeechSpeedRate)
	}

	frames := math.Floor(float64(mockFramesPerLabel) * float64(p.FramePeriod) / p.SpeechSpeedRate)
	if math.IsInf(frames, 0) || frames < 1 {
		return nil, fmt.Errorf("speech speed rate %v yields %v frames per label", p.SpeechSpeedRate, frames)
	}
	if total := frames * float64(len(labels)); total > mockMaxSamples {
		return nil, fmt.Errorf("output of %.0f samples exceeds limit of %d", total, mockMaxSamples)
	}
	perLabel := int(frames)
	pitch := mockBasePitchHz * math.Pow(2, p.AdditionalHalfTone/12)
	gain := mockAmplitude * math.Pow(10, p.VolumeInDB/20)
	step := 2 * math.Pi * pitch / float64(p.SamplingFrequency)

	out := make([]float64, 0, perLabel*len(labels))
	n := 0
	for _, label := range labels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		silent := isPause(label)
		for i := 0; i < perLabel; i++ {
			if silent {
				out = append(out, 0)
			} else {
				out = append(out, gain*math.Sin(step*float64(n)))
			}
			n++
		}
	}
	return out, nil
}

func isPause(label string) bool {
	phoneme := label
	if i := strings.IndexByte(phoneme, '-'); i >= 0 {
		phoneme = phoneme[i+1:]
	}
	if i := strings.IndexByte(phoneme, '+'); i >= 0 {
		phoneme = phoneme[:i]
	}
	return phoneme == "sil" || phoneme == "pau"
}
