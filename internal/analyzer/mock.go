// Package analyzer turns text into full-context labels for synth sessions.
package analyzer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"unicode"
)

const (
	silence = "sil"
	pause   = "pau"
	edge    = "xx"
)

// Mock produces one triphone label per speakable rune, framed by a leading
// and trailing silence label. Punctuation becomes a pause.
type Mock struct {
	dictionary string
}

// NewMock checks that dictionary exists. Its contents are not read.
func NewMock(dictionary string) (*Mock, error) {
	if strings.TrimSpace(dictionary) == "" {
		return nil, fmt.Errorf("dictionary path must not be empty")
	}
	if _, err := os.Stat(dictionary); err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	return &Mock{dictionary: dictionary}, nil
}

func (m *Mock) Analyze(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	phonemes := []string{silence}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			continue
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			if phonemes[len(phonemes)-1] != pause && len(phonemes) > 1 {
				phonemes = append(phonemes, pause)
			}
		default:
			phonemes = append(phonemes, string(r))
		}
	}
	if last := len(phonemes) - 1; last > 0 && phonemes[last] == pause {
		phonemes = phonemes[:last]
	}
	phonemes = append(phonemes, silence)

	labels := make([]string, len(phonemes))
	for i, p := range phonemes {
		prev, next := edge, edge
		if i > 0 {
			prev = phonemes[i-1]
		}
		if i < len(phonemes)-1 {
			next = phonemes[i+1]
		}
		labels[i] = prev + "-" + p + "+" + next
	}
	return labels, nil
}
