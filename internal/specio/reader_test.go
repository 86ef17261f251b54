package specio

import (
	"errors"
	"strings"
	"testing"
)

func TestReadCommaDelimited(t *testing.T) {
	data := "1000.0,0.10,0.20\n1001.0,0.11,0.21\n1002.0,0.12,0.22\n"

	s, err := Read(strings.NewReader(data), "test.csv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if s.Len() != 3 {
		t.Errorf("Expected 3 samples, got %d", s.Len())
	}
	if len(s.Channels) != 2 {
		t.Errorf("Expected 2 channels, got %d", len(s.Channels))
	}
	if s.Channels[1][2] != 0.22 {
		t.Errorf("Expected 0.22, got %f", s.Channels[1][2])
	}
}

func TestReadTabDelimited(t *testing.T) {
	data := "1000.0\t0.10\n1001.0\t0.11\n"

	s, err := Read(strings.NewReader(data), "test.txt")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if s.Len() != 2 || len(s.Channels) != 1 {
		t.Errorf("Expected 2 samples 1 channel, got %d/%d", s.Len(), len(s.Channels))
	}
}

func TestReadHeaderRow(t *testing.T) {
	data := "Wavenumber,SampleA\n1000.0,0.10\n1001.0,0.11\n"

	s, err := Read(strings.NewReader(data), "test.csv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Header row should be skipped, got %d samples", s.Len())
	}
}

func TestReadWhitespaceDelimited(t *testing.T) {
	data := "1000.0  0.10\n1001.0  0.11\n"

	s, err := Read(strings.NewReader(data), "test.dat")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Expected 2 samples, got %d", s.Len())
	}
}

func TestReadDescendingAxisNormalized(t *testing.T) {
	// Instruments often write high-to-low wavenumbers.
	data := "1002.0,0.12\n1001.0,0.11\n1000.0,0.10\n"

	s, err := Read(strings.NewReader(data), "test.csv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if s.Wavenumbers[0] != 1000.0 {
		t.Errorf("Axis should be normalized ascending, got %v", s.Wavenumbers)
	}
	if s.Absorbance()[0] != 0.10 {
		t.Errorf("Absorbance should follow axis reversal, got %v", s.Absorbance())
	}
}

func TestReadCommentsAndBlankLines(t *testing.T) {
	data := "# measured 2024-03-01\n\n1000.0,0.10\n1001.0,0.11\n"

	s, err := Read(strings.NewReader(data), "test.csv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Expected 2 samples, got %d", s.Len())
	}
}

func TestReadMalformedValue(t *testing.T) {
	data := "1000.0,0.10\n1001.0,oops\n"

	_, err := Read(strings.NewReader(data), "test.csv")
	if err == nil {
		t.Fatal("Malformed value should fail")
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected ParseError, got %T", err)
	}
	if pe.Line != 2 {
		t.Errorf("Expected error on line 2, got line %d", pe.Line)
	}
}

func TestReadRaggedColumns(t *testing.T) {
	data := "1000.0,0.10,0.20\n1001.0,0.11\n"

	if _, err := Read(strings.NewReader(data), "test.csv"); err == nil {
		t.Error("Ragged column count should fail")
	}
}
