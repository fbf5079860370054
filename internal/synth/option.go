package synth

// Fallback values used when neither the call nor the session snapshot
// provides a value.
const (
	DefaultSamplingFrequency        = 48000
	DefaultFramePeriod              = 240
	DefaultAllPassConstant          = 0.55
	DefaultPostfilteringCoefficient = 0.0
	DefaultSpeechSpeedRate          = 1.0
	DefaultAdditionalHalfTone       = 0.0
	DefaultVoicedUnvoicedThreshold  = 0.5
	DefaultWeightOfGVForSpectrum    = 1.0
	DefaultWeightOfGVForLogF0       = 1.0
	DefaultVolumeInDB               = 0.0
)

// Stream indices of the acoustic model.
const (
	StreamSpectrum = 0
	StreamLogF0    = 1
)

// Option carries per-call synthesis overrides. A nil field means the caller
// did not specify it. Values are forwarded to the engine without range checks.
type Option struct {
	// Sampling frequency in Hz. 1 <= value.
	SamplingFrequency *int `json:"sampling_frequency,omitempty" yaml:"sampling_frequency,omitempty"`
	// Frame shift in samples. 1 <= value.
	FramePeriod *int `json:"frame_period,omitempty" yaml:"frame_period,omitempty"`
	// Frequency warping parameter alpha. 0.0 <= value <= 1.0.
	AllPassConstant *float64 `json:"all_pass_constant,omitempty" yaml:"all_pass_constant,omitempty"`
	// Postfiltering coefficient beta. 0.0 <= value <= 1.0.
	PostfilteringCoefficient *float64 `json:"postfiltering_coefficient,omitempty" yaml:"postfiltering_coefficient,omitempty"`
	// Speech speed. 0 <= value; very small values are expensive.
	SpeechSpeedRate *float64 `json:"speech_speed_rate,omitempty" yaml:"speech_speed_rate,omitempty"`
	// Additional half tone.
	AdditionalHalfTone *float64 `json:"additional_half_tone,omitempty" yaml:"additional_half_tone,omitempty"`
	// MSD threshold for the log-F0 stream. 0.0 <= value <= 1.0.
	VoicedUnvoicedThreshold *float64 `json:"voiced_unvoiced_threshold,omitempty" yaml:"voiced_unvoiced_threshold,omitempty"`
	// GV weight for the spectrum stream. 0.0 <= value.
	WeightOfGVForSpectrum *float64 `json:"weight_of_gv_for_spectrum,omitempty" yaml:"weight_of_gv_for_spectrum,omitempty"`
	// GV weight for the log-F0 stream. 0.0 <= value.
	WeightOfGVForLogF0 *float64 `json:"weight_of_gv_for_log_f0,omitempty" yaml:"weight_of_gv_for_log_f0,omitempty"`
	// Volume in dB.
	VolumeInDB *float64 `json:"volume_in_db,omitempty" yaml:"volume_in_db,omitempty"`
}

// Defaults is the snapshot taken from a freshly loaded engine. Only these
// three parameters fall back to the snapshot; every other parameter falls
// back to its constant even though the engine reports a live value for it.
// A nil field means the snapshot has no value for it.
type Defaults struct {
	SamplingFrequency *int     `json:"sampling_frequency,omitempty"`
	FramePeriod       *int     `json:"frame_period,omitempty"`
	AllPassConstant   *float64 `json:"all_pass_constant,omitempty"`
}

// DefaultsFromEngine reads the snapshot-eligible parameters from e.
func DefaultsFromEngine(e Engine) Defaults {
	return Defaults{
		SamplingFrequency: Int(e.SamplingFrequency()),
		FramePeriod:       Int(e.FramePeriod()),
		AllPassConstant:   Float(e.Alpha()),
	}
}

// Params is a fully resolved parameter set.
type Params struct {
	SamplingFrequency        int     `json:"sampling_frequency"`
	FramePeriod              int     `json:"frame_period"`
	AllPassConstant          float64 `json:"all_pass_constant"`
	PostfilteringCoefficient float64 `json:"postfiltering_coefficient"`
	SpeechSpeedRate          float64 `json:"speech_speed_rate"`
	AdditionalHalfTone       float64 `json:"additional_half_tone"`
	VoicedUnvoicedThreshold  float64 `json:"voiced_unvoiced_threshold"`
	WeightOfGVForSpectrum    float64 `json:"weight_of_gv_for_spectrum"`
	WeightOfGVForLogF0       float64 `json:"weight_of_gv_for_log_f0"`
	VolumeInDB               float64 `json:"volume_in_db"`
}

// Resolve merges opt over the snapshot and the fixed fallbacks.
func Resolve(opt Option, defaults Defaults) Params {
	return Params{
		SamplingFrequency:        pick(opt.SamplingFrequency, defaults.SamplingFrequency, DefaultSamplingFrequency),
		FramePeriod:              pick(opt.FramePeriod, defaults.FramePeriod, DefaultFramePeriod),
		AllPassConstant:          pick(opt.AllPassConstant, defaults.AllPassConstant, DefaultAllPassConstant),
		PostfilteringCoefficient: or(opt.PostfilteringCoefficient, DefaultPostfilteringCoefficient),
		SpeechSpeedRate:          or(opt.SpeechSpeedRate, DefaultSpeechSpeedRate),
		AdditionalHalfTone:       or(opt.AdditionalHalfTone, DefaultAdditionalHalfTone),
		VoicedUnvoicedThreshold:  or(opt.VoicedUnvoicedThreshold, DefaultVoicedUnvoicedThreshold),
		WeightOfGVForSpectrum:    or(opt.WeightOfGVForSpectrum, DefaultWeightOfGVForSpectrum),
		WeightOfGVForLogF0:       or(opt.WeightOfGVForLogF0, DefaultWeightOfGVForLogF0),
		VolumeInDB:               or(opt.VolumeInDB, DefaultVolumeInDB),
	}
}

// Apply pushes every parameter into the engine's mutable state.
func (p Params) Apply(e Engine) {
	e.SetSamplingFrequency(p.SamplingFrequency)
	e.SetFramePeriod(p.FramePeriod)
	e.SetAlpha(p.AllPassConstant)
	e.SetBeta(p.PostfilteringCoefficient)
	e.SetSpeed(p.SpeechSpeedRate)
	e.SetAdditionalHalfTone(p.AdditionalHalfTone)
	e.SetMSDThreshold(StreamLogF0, p.VoicedUnvoicedThreshold)
	e.SetGVWeight(StreamSpectrum, p.WeightOfGVForSpectrum)
	e.SetGVWeight(StreamLogF0, p.WeightOfGVForLogF0)
	e.SetVolume(p.VolumeInDB)
}

func pick[T int | float64](value, snapshot *T, fallback T) T {
	if value != nil {
		return *value
	}
	return or(snapshot, fallback)
}

func or[T int | float64](value *T, fallback T) T {
	if value != nil {
		return *value
	}
	return fallback
}

// Int returns a pointer to v, for building an Option literal.
func Int(v int) *int { return &v }

// Float returns a pointer to v, for building an Option literal.
func Float(v float64) *float64 { return &v }
