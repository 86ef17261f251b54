package main

import (
	"testing"
	"time"

	"github.com/GuilleTCast/fittingo/internal/peaks"
	"github.com/GuilleTCast/fittingo/internal/store"
)

func TestSelectResultsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectResultsForDeletion(infos, 0, 7)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 results to delete, got %d", len(toDelete))
	}

	found := make(map[string]bool)
	for _, info := range toDelete {
		found[info.JobID] = true
	}
	if !found["job1"] || !found["job4"] {
		t.Error("Expected job1 and job4 to be selected for deletion")
	}
}

func TestSelectResultsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
		{JobID: "job4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectResultsForDeletion(infos, 2, 0)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 results to delete, got %d", len(toDelete))
	}

	// Oldest two go, newest two stay
	found := make(map[string]bool)
	for _, info := range toDelete {
		found[info.JobID] = true
	}
	if !found["job1"] || !found["job4"] {
		t.Error("Expected the two oldest results to be selected")
	}
}

func TestSelectResultsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{
		{JobID: "job1", Timestamp: now.AddDate(0, 0, -10)},
		{JobID: "job2", Timestamp: now.AddDate(0, 0, -5)},
		{JobID: "job3", Timestamp: now.AddDate(0, 0, -1)},
	}

	// Age selects job1; keep-last 1 selects job1 and job2. No duplicates.
	toDelete := selectResultsForDeletion(infos, 1, 7)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 results to delete, got %d", len(toDelete))
	}
	for _, info := range toDelete {
		if info.JobID == "job3" {
			t.Error("Newest result should be kept")
		}
	}
}

func TestSelectResultsForDeletion_NoCriteria(t *testing.T) {
	infos := []store.RecordInfo{{JobID: "job1", Timestamp: time.Now()}}

	if toDelete := selectResultsForDeletion(infos, 0, 0); len(toDelete) != 0 {
		t.Errorf("No criteria should delete nothing, got %d", len(toDelete))
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abc"); got != "abc" {
		t.Errorf("Short ID should pass through, got %q", got)
	}
	long := "0123456789abcdef"
	if got := shortID(long); got != "0123456789ab..." {
		t.Errorf("Long ID should truncate, got %q", got)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		512:     "512 B",
		2048:    "2.0 KB",
		1048576: "1.0 MB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestParseSeedSpec(t *testing.T) {
	p, err := parseSeedSpec("1500:6:0.8", peaks.Gaussian)
	if err != nil {
		t.Fatalf("parseSeedSpec failed: %v", err)
	}
	if p.Center != 1500 || p.Width != 6 || p.Amplitude != 0.8 {
		t.Errorf("Parsed wrong values: %+v", p)
	}

	p, err = parseSeedSpec("1500:6:0.8:0.3", peaks.Voigt)
	if err != nil {
		t.Fatalf("parseSeedSpec with mix failed: %v", err)
	}
	if p.Mix != 0.3 {
		t.Errorf("Mix not parsed: %v", p.Mix)
	}

	for _, bad := range []string{"", "1500", "1500:6", "a:b:c", "1:2:3:4:5"} {
		if _, err := parseSeedSpec(bad, peaks.Gaussian); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}
