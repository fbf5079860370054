package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"github.com/loqalabs/loqa-jtalk/internal/htsvoice"
	"github.com/loqalabs/loqa-jtalk/internal/synth"
)

// Exec delegates waveform generation to an external command. Each call
// writes one JSON request to the command's stdin and reads one JSON
// response from its stdout.
type Exec struct {
	*State
	cmd   []string
	model string
}

type execRequest struct {
	Model  string       `json:"model"`
	Labels []string     `json:"labels"`
	Params synth.Params `json:"params"`
}

type execResponse struct {
	Samples []float64 `json:"samples"`
	Error   string    `json:"error,omitempty"`
}

func NewExec(cmd []string, model string, h htsvoice.Header) (*Exec, error) {
	if len(cmd) == 0 {
		return nil, errors.New("engine command empty")
	}
	return &Exec{State: NewState(h), cmd: append([]string(nil), cmd...), model: model}, nil
}

func (e *Exec) Synthesize(ctx context.Context, labels []string) ([]float64, error) {
	input, err := json.Marshal(execRequest{Model: e.model, Labels: labels, Params: e.Params()})
	if err != nil {
		return nil, err
	}

	command := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	command.Stdin = bytes.NewReader(input)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("engine command failed: %w: %s", err, stderr.String())
	}

	var resp execResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode engine response: %w", err)
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Samples, nil
}
