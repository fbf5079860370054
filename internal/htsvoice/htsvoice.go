// Package htsvoice reads the text header of an .htsvoice acoustic model.
package htsvoice

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Header holds the [GLOBAL] and [STREAM] sections of a voice file.
type Header struct {
	Version            string
	SamplingFrequency  int
	FramePeriod        int
	NumStates          int
	NumStreams         int
	StreamTypes        []string
	FullContextFormat  string
	FullContextVersion string
	GVOffContext       []string
	Comment            string

	VectorLength map[string]int
	IsMSD        map[string]bool
	UseGV        map[string]bool
	// Options holds OPTION[stream] entries, e.g. Options["MCP"]["ALPHA"] = "0.55".
	Options map[string]map[string]string
}

// Alpha returns the all-pass constant of the spectrum stream, and whether
// the voice declares one.
func (h Header) Alpha() (float64, bool) {
	if len(h.StreamTypes) == 0 {
		return 0, false
	}
	raw, ok := h.Options[h.StreamTypes[0]]["ALPHA"]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// LoadFile parses the header of the voice file at path.
func LoadFile(path string) (Header, error) {
	if strings.TrimSpace(path) == "" {
		return Header{}, errors.New("voice path must not be empty")
	}
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("open voice: %w", err)
	}
	defer f.Close()
	h, err := Parse(f)
	if err != nil {
		return Header{}, fmt.Errorf("parse voice %s: %w", path, err)
	}
	return h, nil
}

// Parse reads header sections until [POSITION] or [DATA]. The binary model
// data that follows is not read.
func Parse(r io.Reader) (Header, error) {
	h := Header{
		VectorLength: map[string]int{},
		IsMSD:        map[string]bool{},
		UseGV:        map[string]bool{},
		Options:      map[string]map[string]string{},
	}

	scanner := bufio.NewScanner(r)
	section := ""
	seenGlobal := false
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = line
			if section == "[GLOBAL]" {
				seenGlobal = true
			}
			if section == "[POSITION]" || section == "[DATA]" {
				break
			}
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return Header{}, fmt.Errorf("malformed line %q", line)
		}
		var err error
		switch section {
		case "[GLOBAL]":
			err = h.setGlobal(key, value)
		case "[STREAM]":
			err = h.setStream(key, value)
		default:
			return Header{}, fmt.Errorf("entry %q outside of a section", key)
		}
		if err != nil {
			return Header{}, err
		}
	}
	if err := scanner.Err(); err != nil {
		return Header{}, err
	}
	if !seenGlobal {
		return Header{}, errors.New("missing [GLOBAL] section")
	}
	return h, h.validate()
}

func (h *Header) setGlobal(key, value string) error {
	var err error
	switch key {
	case "HTS_VOICE_VERSION":
		h.Version = value
	case "SAMPLING_FREQUENCY":
		h.SamplingFrequency, err = strconv.Atoi(value)
	case "FRAME_PERIOD":
		h.FramePeriod, err = strconv.Atoi(value)
	case "NUM_STATES":
		h.NumStates, err = strconv.Atoi(value)
	case "NUM_STREAMS":
		h.NumStreams, err = strconv.Atoi(value)
	case "STREAM_TYPE":
		h.StreamTypes = splitList(value)
	case "FULLCONTEXT_FORMAT":
		h.FullContextFormat = value
	case "FULLCONTEXT_VERSION":
		h.FullContextVersion = value
	case "GV_OFF_CONTEXT":
		for _, pattern := range splitList(value) {
			h.GVOffContext = append(h.GVOffContext, strings.Trim(pattern, `"`))
		}
	case "COMMENT":
		h.Comment = value
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func (h *Header) setStream(key, value string) error {
	name, stream, ok := streamKey(key)
	if !ok {
		return fmt.Errorf("malformed stream key %q", key)
	}
	switch name {
	case "VECTOR_LENGTH":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		h.VectorLength[stream] = n
	case "IS_MSD":
		h.IsMSD[stream] = value == "1"
	case "USE_GV":
		h.UseGV[stream] = value == "1"
	case "OPTION":
		opts := map[string]string{}
		for _, kv := range splitList(value) {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("%s: malformed option %q", key, kv)
			}
			opts[k] = v
		}
		h.Options[stream] = opts
	}
	return nil
}

func (h Header) validate() error {
	if h.Version == "" {
		return errors.New("HTS_VOICE_VERSION is missing")
	}
	if h.SamplingFrequency < 1 {
		return fmt.Errorf("SAMPLING_FREQUENCY must be >= 1, got %d", h.SamplingFrequency)
	}
	if h.FramePeriod < 1 {
		return fmt.Errorf("FRAME_PERIOD must be >= 1, got %d", h.FramePeriod)
	}
	if h.NumStreams > 0 && len(h.StreamTypes) != h.NumStreams {
		return fmt.Errorf("STREAM_TYPE lists %d streams, NUM_STREAMS is %d", len(h.StreamTypes), h.NumStreams)
	}
	return nil
}

// streamKey splits "VECTOR_LENGTH[MCP]" into ("VECTOR_LENGTH", "MCP").
func streamKey(key string) (string, string, bool) {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return "", "", false
	}
	return key[:open], key[open+1 : len(key)-1], true
}

func splitList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}
