package engine

import (
	"fmt"

	"github.com/loqalabs/loqa-jtalk/internal/htsvoice"
	"github.com/loqalabs/loqa-jtalk/internal/synth"
	"github.com/mattn/go-shellwords"
)

// Loader returns a synth.EngineLoader for mode "mock" or "exec". In both
// modes the model header is parsed at load time so a bad model fails
// session construction.
func Loader(mode, command string) (synth.EngineLoader, error) {
	switch mode {
	case "mock":
		return func(model string) (synth.Engine, error) {
			h, err := htsvoice.LoadFile(model)
			if err != nil {
				return nil, err
			}
			return NewMock(h), nil
		}, nil
	case "exec":
		args, err := shellwords.NewParser().Parse(command)
		if err != nil {
			return nil, fmt.Errorf("parse engine command: %w", err)
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("engine command empty")
		}
		return func(model string) (synth.Engine, error) {
			h, err := htsvoice.LoadFile(model)
			if err != nil {
				return nil, err
			}
			return NewExec(args, model, h)
		}, nil
	default:
		return nil, fmt.Errorf("unknown engine mode %q", mode)
	}
}
