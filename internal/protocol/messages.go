package protocol

import (
	"time"

	"github.com/loqalabs/loqa-jtalk/internal/synth"
)

// TTSRequest asks a node to synthesize text.
type TTSRequest struct {
	SessionID string       `json:"session_id"`
	RequestID string       `json:"request_id,omitempty"`
	Text      string       `json:"text"`
	Options   synth.Option `json:"options"`
	Target    string       `json:"target,omitempty"`
	TraceID   string       `json:"trace_id,omitempty"`
}

// AudioChunk carries little-endian 16-bit mono PCM produced for a request.
type AudioChunk struct {
	SessionID  string `json:"session_id"`
	RequestID  string `json:"request_id"`
	Target     string `json:"target,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Sequence   int    `json:"sequence"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// TTSStatus is published once per request after the last chunk, or in
// place of audio when the request fails.
type TTSStatus struct {
	SessionID  string    `json:"session_id"`
	RequestID  string    `json:"request_id"`
	Target     string    `json:"target,omitempty"`
	Completed  bool      `json:"completed"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Samples    int       `json:"samples"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// VoiceAnnouncement advertises a node's voice on the control plane.
type VoiceAnnouncement struct {
	Node              string    `json:"node"`
	Model             string    `json:"model"`
	Sessions          int       `json:"sessions"`
	SamplingFrequency int       `json:"sampling_frequency"`
	FramePeriod       int       `json:"frame_period"`
	AllPassConstant   float64   `json:"all_pass_constant"`
	Timestamp         time.Time `json:"timestamp"`
}

const (
	SubjectTTSRequest         = "tts.request"
	SubjectTTSAudio           = "tts.audio"
	SubjectTTSDone            = "tts.done"
	SubjectVoiceAnnounce      = "ctrl.voice.announce"
	SubjectVoiceHeartbeatBase = "ctrl.voice.heartbeat"
)

// VoiceHeartbeatSubject returns the heartbeat subject for node.
func VoiceHeartbeatSubject(node string) string {
	return SubjectVoiceHeartbeatBase + "." + node
}
