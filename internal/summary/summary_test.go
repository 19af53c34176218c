package summary

import (
	"math"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	want := &Record{
		Datetime: time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC),
		Platform: "Linux-6.1.0-x86_64-with-debian-12.4",
		Command:  "sh -c 'echo a:b; sleep 1'",
		Trial:    3,
		TimeSec:  2.5,
		EnergyUJ: 5000000,
		PowerW:   2,
		ExitCode: 0,
		Success:  true,
	}

	if err := WriteFile(path, want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Datetime.Equal(want.Datetime) {
		t.Fatalf("unexpected datetime %v want %v", got.Datetime, want.Datetime)
	}
	gotCopy, wantCopy := *got, *want
	gotCopy.Datetime, wantCopy.Datetime = time.Time{}, time.Time{}
	if gotCopy != wantCopy {
		t.Fatalf("unexpected record: %+v want %+v", got, want)
	}
}

func TestParse(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		check     func(t *testing.T, r *Record)
		expectErr bool
	}{
		{
			name: "minimal record",
			input: "Time (sec): 1.5\n" +
				"Energy (uJ): 3000000\n",
			check: func(t *testing.T, r *Record) {
				if r.TimeSec != 1.5 || r.EnergyUJ != 3000000 {
					t.Fatalf("unexpected totals %+v", r)
				}
				if math.Abs(r.PowerW-2) > 1e-9 {
					t.Fatalf("expected derived power 2 W, got %v", r.PowerW)
				}
				if !r.Success {
					t.Fatalf("records without status are successful")
				}
			},
		},
		{
			name: "value containing colons and no trailing newline",
			input: "Datetime (UTC): 2015-11-11T10:20:30.000001\n" +
				"Command: ./bench --mode=a:b\n" +
				"Time (sec): 10\n" +
				"Energy (uJ): 100",
			check: func(t *testing.T, r *Record) {
				if r.Command != "./bench --mode=a:b" {
					t.Fatalf("unexpected command %q", r.Command)
				}
				want := time.Date(2015, 11, 11, 10, 20, 30, 1000, time.UTC)
				if !r.Datetime.Equal(want) {
					t.Fatalf("unexpected datetime %v", r.Datetime)
				}
			},
		},
		{
			name: "blank lines, unknown keys and failure status",
			input: "\nTime (sec): 4\n\nEnergy (uJ): 8.0e6\nHost: node1\n" +
				"Exit Code: 2\nStatus: Failure\n",
			check: func(t *testing.T, r *Record) {
				if r.EnergyUJ != 8000000 {
					t.Fatalf("unexpected energy %d", r.EnergyUJ)
				}
				if r.Success || r.ExitCode != 2 {
					t.Fatalf("unexpected status %+v", r)
				}
			},
		},
		{
			name: "empty value",
			input: "Platform:\n" +
				"Time (sec): 1\nEnergy (uJ): 1\n",
			check: func(t *testing.T, r *Record) {
				if r.Platform != "" {
					t.Fatalf("unexpected platform %q", r.Platform)
				}
			},
		},
		{
			name:      "missing energy",
			input:     "Time (sec): 1\n",
			expectErr: true,
		},
		{
			name:      "invalid time",
			input:     "Time (sec): soon\nEnergy (uJ): 1\n",
			expectErr: true,
		},
		{
			name:      "negative energy",
			input:     "Time (sec): 1\nEnergy (uJ): -5\n",
			expectErr: true,
		},
		{
			name: "lines without separator are skipped",
			input: "Time (sec): 2\nnotes without separator\nEnergy (uJ): 4000000\n" +
				"trailing note",
			check: func(t *testing.T, r *Record) {
				if r.TimeSec != 2 || r.EnergyUJ != 4000000 {
					t.Fatalf("unexpected totals %+v", r)
				}
			},
		},
		{
			name:      "required key without separator",
			input:     "Time (sec) 1\nEnergy (uJ): 1\n",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Parse("summary.txt", []byte(tc.input))
			if tc.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tc.check(t, r)
		})
	}
}

func TestAveragePower(t *testing.T) {
	if p := AveragePower(10_000_000, 5); p != 2 {
		t.Fatalf("unexpected power %v", p)
	}
	if p := AveragePower(10, 0); p != 0 {
		t.Fatalf("zero time must yield zero power, got %v", p)
	}
}
