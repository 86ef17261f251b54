// Package specio reads tabular spectra: column 0 is the wavenumber axis,
// every further column is an absorbance channel. The delimiter is sniffed
// from the first line (comma, then tab, then whitespace) and a single
// non-numeric header row is skipped.
package specio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/GuilleTCast/fittingo/internal/spectrum"
)

// ParseError reports a malformed line in a spectrum file.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
}

// ReadFile loads a spectrum from a delimited text file.
func ReadFile(path string) (*spectrum.Spectrum, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spectrum file: %w", err)
	}
	defer f.Close()

	s, err := Read(f, path)
	if err != nil {
		return nil, err
	}
	s.SourceFile = path
	return s, nil
}

// Read parses a spectrum from r. The name is used in error messages only.
func Read(r io.Reader, name string) (*spectrum.Spectrum, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		wavenumbers []float64
		channels    [][]float64
		delimiter   string
		lineNo      int
		sniffed     bool
	)

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !sniffed {
			var header bool
			delimiter, header = sniff(line)
			sniffed = true
			if header {
				continue
			}
		}

		fields := split(line, delimiter)
		if len(fields) < 2 {
			return nil, &ParseError{Path: name, Line: lineNo,
				Msg: fmt.Sprintf("expected at least 2 columns, got %d", len(fields))}
		}

		values := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, &ParseError{Path: name, Line: lineNo,
					Msg: fmt.Sprintf("column %d: not a number: %q", i, field)}
			}
			values[i] = v
		}

		if channels == nil {
			channels = make([][]float64, len(values)-1)
		} else if len(values)-1 != len(channels) {
			return nil, &ParseError{Path: name, Line: lineNo,
				Msg: fmt.Sprintf("expected %d columns, got %d", len(channels)+1, len(values))}
		}

		wavenumbers = append(wavenumbers, values[0])
		for i, v := range values[1:] {
			channels[i] = append(channels[i], v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read spectrum data: %w", err)
	}

	s := &spectrum.Spectrum{Wavenumbers: wavenumbers, Channels: channels}
	if err := s.Normalize(); err != nil {
		return nil, err
	}
	return s, nil
}

// sniff determines the delimiter from the first line and whether that line
// is a header. A line that parses as numbers with commas wins, then tabs,
// then whitespace; if nothing parses the line is a header and the delimiter
// is taken from whichever separator appears in it.
func sniff(line string) (delimiter string, header bool) {
	for _, d := range []string{",", "\t", ""} {
		if numeric(split(line, d)) {
			return d, false
		}
	}
	switch {
	case strings.Contains(line, ","):
		return ",", true
	case strings.Contains(line, "\t"):
		return "\t", true
	default:
		return "", true
	}
}

func split(line, delimiter string) []string {
	if delimiter == "" {
		return strings.Fields(line)
	}
	return strings.Split(line, delimiter)
}

func numeric(fields []string) bool {
	if len(fields) < 2 {
		return false
	}
	for _, f := range fields {
		if _, err := strconv.ParseFloat(strings.TrimSpace(f), 64); err != nil {
			return false
		}
	}
	return true
}
