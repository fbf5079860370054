// Package engine provides acoustic engine handles for synth sessions.
package engine

import (
	"sync"

	"github.com/loqalabs/loqa-jtalk/internal/htsvoice"
	"github.com/loqalabs/loqa-jtalk/internal/synth"
)

// State is the mutable parameter block of an engine handle. Its zero value
// is not useful; use NewState.
type State struct {
	mu     sync.Mutex
	params synth.Params
}

// NewState seeds the parameter block with the native values of a voice.
func NewState(h htsvoice.Header) *State {
	alpha, ok := h.Alpha()
	if !ok {
		alpha = synth.DefaultAllPassConstant
	}
	return &State{params: synth.Params{
		SamplingFrequency:        h.SamplingFrequency,
		FramePeriod:              h.FramePeriod,
		AllPassConstant:          alpha,
		PostfilteringCoefficient: synth.DefaultPostfilteringCoefficient,
		SpeechSpeedRate:          synth.DefaultSpeechSpeedRate,
		AdditionalHalfTone:       synth.DefaultAdditionalHalfTone,
		VoicedUnvoicedThreshold:  synth.DefaultVoicedUnvoicedThreshold,
		WeightOfGVForSpectrum:    synth.DefaultWeightOfGVForSpectrum,
		WeightOfGVForLogF0:       synth.DefaultWeightOfGVForLogF0,
		VolumeInDB:               synth.DefaultVolumeInDB,
	}}
}

// Params returns a copy of the current parameters.
func (s *State) Params() synth.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

func (s *State) update(fn func(p *synth.Params)) {
	s.mu.Lock()
	fn(&s.params)
	s.mu.Unlock()
}

func (s *State) SamplingFrequency() int { return s.Params().SamplingFrequency }
func (s *State) FramePeriod() int       { return s.Params().FramePeriod }
func (s *State) Alpha() float64         { return s.Params().AllPassConstant }

func (s *State) SetSamplingFrequency(hz int) {
	s.update(func(p *synth.Params) { p.SamplingFrequency = hz })
}

func (s *State) SetFramePeriod(samples int) {
	s.update(func(p *synth.Params) { p.FramePeriod = samples })
}

func (s *State) SetAlpha(alpha float64) {
	s.update(func(p *synth.Params) { p.AllPassConstant = alpha })
}

func (s *State) SetBeta(beta float64) {
	s.update(func(p *synth.Params) { p.PostfilteringCoefficient = beta })
}

func (s *State) SetSpeed(rate float64) {
	s.update(func(p *synth.Params) { p.SpeechSpeedRate = rate })
}

func (s *State) SetAdditionalHalfTone(halfTone float64) {
	s.update(func(p *synth.Params) { p.AdditionalHalfTone = halfTone })
}

// SetMSDThreshold only has a log-F0 stream slot; other streams are ignored.
func (s *State) SetMSDThreshold(stream int, threshold float64) {
	if stream != synth.StreamLogF0 {
		return
	}
	s.update(func(p *synth.Params) { p.VoicedUnvoicedThreshold = threshold })
}

func (s *State) SetGVWeight(stream int, weight float64) {
	s.update(func(p *synth.Params) {
		switch stream {
		case synth.StreamSpectrum:
			p.WeightOfGVForSpectrum = weight
		case synth.StreamLogF0:
			p.WeightOfGVForLogF0 = weight
		}
	})
}

func (s *State) SetVolume(db float64) {
	s.update(func(p *synth.Params) { p.VolumeInDB = db })
}
