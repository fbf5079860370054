package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/loqalabs/loqa-jtalk/internal/config"
)

func TestOptionFromFlagsOnlyVisited(t *testing.T) {
	var f sayFlags
	fs := flag.NewFlagSet("say", flag.ContinueOnError)
	fs.IntVar(&f.samplingFrequency, "sampling-frequency", 0, "")
	fs.IntVar(&f.framePeriod, "frame-period", 0, "")
	fs.Float64Var(&f.allPassConstant, "alpha", 0, "")
	fs.Float64Var(&f.volumeInDB, "volume", 0, "")
	if err := fs.Parse([]string{"-frame-period", "120", "-alpha", "0", "hello"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	opt := optionFromFlags(fs, &f)
	if opt.FramePeriod == nil || *opt.FramePeriod != 120 {
		t.Fatalf("expected frame period 120, got %v", opt.FramePeriod)
	}
	if opt.AllPassConstant == nil || *opt.AllPassConstant != 0 {
		t.Fatalf("explicit zero alpha must be kept, got %v", opt.AllPassConstant)
	}
	if opt.SamplingFrequency != nil || opt.VolumeInDB != nil {
		t.Fatalf("unset flags must stay omitted: %+v", opt)
	}
}

func TestResolveSynthConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jtalk.yaml")
	body := "synth:\n  dictionary: /from/file\n  model: /from/file.htsvoice\n  sessions: 1\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := resolveSynthConfig(path, config.SynthConfig{Model: "/from/flag.htsvoice"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cfg.Dictionary != "/from/file" || cfg.Model != "/from/flag.htsvoice" || cfg.EngineMode != "mock" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestPrepareReportsConfigurationErrors(t *testing.T) {
	cases := []struct {
		name  string
		path  string
		flags config.SynthConfig
	}{
		{name: "missing config file", path: filepath.Join(t.TempDir(), "missing.yaml")},
		{name: "unknown engine mode", flags: config.SynthConfig{EngineMode: "neural"}},
		{name: "unbalanced engine command", flags: config.SynthConfig{EngineMode: "exec", EngineCommand: `engine "unterminated`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := prepare(tc.path, tc.flags)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := exitCode(err); got != 3 {
				t.Fatalf("exit code = %d, want 3 (%v)", got, err)
			}
		})
	}
	if got := exitCode(errors.New("disk full")); got != 1 {
		t.Fatalf("exit code for other errors = %d, want 1", got)
	}
}
