package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
)

// Exec runs an external front end once per call. The request is JSON on
// stdin and the labels come back as JSON on stdout.
type Exec struct {
	cmd        []string
	dictionary string
}

type execRequest struct {
	Text       string `json:"text"`
	Dictionary string `json:"dictionary"`
}

type execResponse struct {
	Labels []string `json:"labels"`
	Error  string   `json:"error,omitempty"`
}

func NewExec(cmd []string, dictionary string) (*Exec, error) {
	if len(cmd) == 0 {
		return nil, errors.New("analyzer command empty")
	}
	return &Exec{cmd: append([]string(nil), cmd...), dictionary: dictionary}, nil
}

func (e *Exec) Analyze(ctx context.Context, text string) ([]string, error) {
	input, err := json.Marshal(execRequest{Text: text, Dictionary: e.dictionary})
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
		return nil, fmt.Errorf("analyzer command failed: %w: %s", err, stderr.String())
	}

	var resp execResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode analyzer response: %w", err)
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Labels, nil
}
