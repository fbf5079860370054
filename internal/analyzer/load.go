package analyzer

import (
	"errors"
	"fmt"
	"os"

	"github.com/loqalabs/loqa-jtalk/internal/synth"
	"github.com/mattn/go-shellwords"
)

// Loader returns a synth.AnalyzerLoader for mode "mock" or "exec".
func Loader(mode, command string) (synth.AnalyzerLoader, error) {
	switch mode {
	case "mock":
		return func(dictionary string) (synth.Analyzer, error) {
			return NewMock(dictionary)
		}, nil
	case "exec":
		args, err := shellwords.NewParser().Parse(command)
		if err != nil {
			return nil, fmt.Errorf("parse analyzer command: %w", err)
		}
		if len(args) == 0 {
			return nil, errors.New("analyzer command empty")
		}
		return func(dictionary string) (synth.Analyzer, error) {
			if _, err := os.Stat(dictionary); err != nil {
				return nil, fmt.Errorf("open dictionary: %w", err)
			}
			return NewExec(args, dictionary)
		}, nil
	default:
		return nil, fmt.Errorf("unknown analyzer mode %q", mode)
	}
}
