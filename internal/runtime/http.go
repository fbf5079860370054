package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-jtalk/internal/audio"
	"github.com/loqalabs/loqa-jtalk/internal/protocol"
	"github.com/loqalabs/loqa-jtalk/internal/synth"
	"github.com/loqalabs/loqa-jtalk/internal/tts"
	"github.com/loqalabs/loqa-jtalk/internal/voices"
)

const maxRequestBytes = 1 << 20

type synthesizeRequest struct {
	SessionID string       `json:"session_id"`
	Text      string       `json:"text"`
	Options   synth.Option `json:"options"`
	Format    string       `json:"format"`
}

type voiceResponse struct {
	Voice voices.Voice      `json:"voice"`
	Nodes []voices.NodeInfo `json:"nodes,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// api serves the HTTP surface of the synthesis service.
type api struct {
	svc      *tts.Service
	voice    voices.Voice
	registry *voices.Registry
	logger   *slog.Logger
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/voice", a.handleVoice)
	mux.HandleFunc("POST /v1/synthesize", a.handleSynthesize)
}

func (a *api) handleVoice(w http.ResponseWriter, _ *http.Request) {
	resp := voiceResponse{Voice: a.voice}
	if a.registry != nil {
		resp.Nodes = a.registry.Query(nil)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	var body synthesizeRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}
	format := strings.ToLower(strings.TrimSpace(body.Format))
	if format == "" {
		format = "wav"
	}
	if format != "wav" && format != "pcm" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "format must be wav or pcm"})
		return
	}

	result, err := a.svc.Synthesize(r.Context(), protocol.TTSRequest{
		SessionID: body.SessionID,
		RequestID: r.Header.Get("X-Request-Id"),
		Text:      body.Text,
		Options:   body.Options,
	})
	if err != nil {
		status := statusFor(err)
		a.logger.Warn("http synthesis failed",
			slog.Int("status", status),
			slog.String("error_kind", synth.KindOf(err).String()),
			slogError(err))
		writeJSON(w, status, errorResponse{Error: err.Error(), ErrorKind: synth.KindOf(err).String()})
		return
	}

	w.Header().Set("X-Request-Id", result.RequestID)
	w.Header().Set("X-Sample-Rate", strconv.Itoa(result.SampleRate))
	w.Header().Set("X-Samples", strconv.Itoa(len(result.PCM)))

	if format == "pcm" {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("X-Audio-Encoding", "s16le")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(audio.PCMBytes(result.PCM))
		return
	}

	data, err := audio.EncodeWAV(result.PCM, result.SampleRate)
	if err != nil {
		// an explicit sampling frequency < 1 reaches here only if the engine accepted it
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// statusFor maps synthesis failures to HTTP status codes.
func statusFor(err error) int {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch synth.KindOf(err) {
	case synth.KindConfiguration:
		return http.StatusInternalServerError
	case synth.KindAnalysis:
		return http.StatusUnprocessableEntity
	case synth.KindSynthesis:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
