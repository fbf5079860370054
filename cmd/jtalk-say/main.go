package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/loqalabs/loqa-jtalk/internal/audio"
	"github.com/loqalabs/loqa-jtalk/internal/config"
	"github.com/loqalabs/loqa-jtalk/internal/htsvoice"
	"github.com/loqalabs/loqa-jtalk/internal/runtime"
	"github.com/loqalabs/loqa-jtalk/internal/synth"
)

var version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'say', 'inspect' or 'version'")
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "say":
		err = runSay(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 3 for configuration errors and 1 for anything else.
func exitCode(err error) int {
	if synth.KindOf(err) == synth.KindConfiguration {
		return 3
	}
	return 1
}

type sayFlags struct {
	configPath string
	output     string
	verbose    bool
	synth      config.SynthConfig

	samplingFrequency        int
	framePeriod              int
	allPassConstant          float64
	postfilteringCoefficient float64
	speechSpeedRate          float64
	additionalHalfTone       float64
	voicedUnvoicedThreshold  float64
	weightOfGVForSpectrum    float64
	weightOfGVForLogF0       float64
	volumeInDB               float64
}

func runSay(args []string) error {
	var f sayFlags
	fs := flag.NewFlagSet("say", flag.ExitOnError)
	fs.StringVar(&f.configPath, "config", "", "Optional configuration file for the synth section")
	fs.StringVar(&f.output, "o", "out.wav", "Output WAV file")
	fs.BoolVar(&f.verbose, "v", false, "Log session activity to stderr")
	fs.StringVar(&f.synth.Dictionary, "dictionary", "", "Dictionary directory")
	fs.StringVar(&f.synth.Model, "model", "", "Voice model (.htsvoice)")
	fs.StringVar(&f.synth.AnalyzerMode, "analyzer", "", "Analyzer mode: mock|exec")
	fs.StringVar(&f.synth.AnalyzerCommand, "analyzer-command", "", "Analyzer command for exec mode")
	fs.StringVar(&f.synth.EngineMode, "engine", "", "Engine mode: mock|exec")
	fs.StringVar(&f.synth.EngineCommand, "engine-command", "", "Engine command for exec mode")

	fs.IntVar(&f.samplingFrequency, "sampling-frequency", 0, "Sampling frequency in Hz")
	fs.IntVar(&f.framePeriod, "frame-period", 0, "Frame period in samples")
	fs.Float64Var(&f.allPassConstant, "alpha", 0, "All-pass constant")
	fs.Float64Var(&f.postfilteringCoefficient, "beta", 0, "Postfiltering coefficient")
	fs.Float64Var(&f.speechSpeedRate, "speed", 0, "Speech speed rate")
	fs.Float64Var(&f.additionalHalfTone, "half-tone", 0, "Additional half tone")
	fs.Float64Var(&f.voicedUnvoicedThreshold, "msd-threshold", 0, "Voiced/unvoiced threshold")
	fs.Float64Var(&f.weightOfGVForSpectrum, "gv-spectrum", 0, "GV weight for spectrum")
	fs.Float64Var(&f.weightOfGVForLogF0, "gv-lf0", 0, "GV weight for log F0")
	fs.Float64Var(&f.volumeInDB, "volume", 0, "Volume in dB")
	_ = fs.Parse(args)

	text := strings.Join(fs.Args(), " ")
	if text == "" {
		return errors.New("usage: jtalk-say say [flags] <text>")
	}

	cfg, loaders, err := prepare(f.configPath, f.synth)
	if err != nil {
		return err
	}
	opt := optionFromFlags(fs, &f)

	logger := slog.New(slog.DiscardHandler)
	if f.verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	session, err := synth.New(synth.Config{Dictionary: cfg.Dictionary, Model: cfg.Model}, loaders, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	pcm, err := session.Synthesize(context.Background(), text, opt)
	if err != nil {
		return err
	}
	rate := synth.Resolve(opt, session.Defaults()).SamplingFrequency

	out, err := os.Create(f.output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := audio.WriteWAV(out, pcm, rate); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %d samples at %d Hz to %s\n", len(pcm), rate, f.output)
	return nil
}

// prepare resolves the synth section and its loaders. Failures are
// reported as configuration errors.
func prepare(path string, flags config.SynthConfig) (config.SynthConfig, synth.Loaders, error) {
	cfg, err := resolveSynthConfig(path, flags)
	if err != nil {
		return config.SynthConfig{}, synth.Loaders{}, &synth.Error{Kind: synth.KindConfiguration, Op: "load config", Err: err}
	}
	loaders, err := runtime.Loaders(cfg)
	if err != nil {
		return config.SynthConfig{}, synth.Loaders{}, &synth.Error{Kind: synth.KindConfiguration, Op: "select loaders", Err: err}
	}
	return cfg, loaders, nil
}

// resolveSynthConfig layers explicit flags over the config file (or the
// defaults when no file is given).
func resolveSynthConfig(path string, flags config.SynthConfig) (config.SynthConfig, error) {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.SynthConfig{}, err
		}
		cfg = loaded
	}
	s := cfg.Synth
	for _, pair := range []struct {
		target *string
		value  string
	}{
		{&s.Dictionary, flags.Dictionary},
		{&s.Model, flags.Model},
		{&s.AnalyzerMode, flags.AnalyzerMode},
		{&s.AnalyzerCommand, flags.AnalyzerCommand},
		{&s.EngineMode, flags.EngineMode},
		{&s.EngineCommand, flags.EngineCommand},
	} {
		if pair.value != "" {
			*pair.target = pair.value
		}
	}
	return s, nil
}

// optionFromFlags sets only the options given on the command line so that
// omitted ones fall back to the voice defaults.
func optionFromFlags(fs *flag.FlagSet, f *sayFlags) synth.Option {
	var opt synth.Option
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "sampling-frequency":
			opt.SamplingFrequency = synth.Int(f.samplingFrequency)
		case "frame-period":
			opt.FramePeriod = synth.Int(f.framePeriod)
		case "alpha":
			opt.AllPassConstant = synth.Float(f.allPassConstant)
		case "beta":
			opt.PostfilteringCoefficient = synth.Float(f.postfilteringCoefficient)
		case "speed":
			opt.SpeechSpeedRate = synth.Float(f.speechSpeedRate)
		case "half-tone":
			opt.AdditionalHalfTone = synth.Float(f.additionalHalfTone)
		case "msd-threshold":
			opt.VoicedUnvoicedThreshold = synth.Float(f.voicedUnvoicedThreshold)
		case "gv-spectrum":
			opt.WeightOfGVForSpectrum = synth.Float(f.weightOfGVForSpectrum)
		case "gv-lf0":
			opt.WeightOfGVForLogF0 = synth.Float(f.weightOfGVForLogF0)
		case "volume":
			opt.VolumeInDB = synth.Float(f.volumeInDB)
		}
	})
	return opt
}

func runInspect(args []string) error {
	var model string
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	fs.StringVar(&model, "model", "", "Voice model (.htsvoice)")
	_ = fs.Parse(args)

	h, err := htsvoice.LoadFile(model)
	if err != nil {
		return err
	}
	alpha, ok := h.Alpha()
	if !ok {
		alpha = synth.DefaultAllPassConstant
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"version":            h.Version,
		"sampling_frequency": h.SamplingFrequency,
		"frame_period":       h.FramePeriod,
		"all_pass_constant":  alpha,
		"streams":            h.StreamTypes,
		"fullcontext_format": h.FullContextFormat,
		"comment":            h.Comment,
	})
}
