package summary

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// A summary file is a sequence of "Key: value" lines. The value runs to
// the end of the line and may itself contain colons. Lines without a
// separator are skipped.
var summaryLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "EOL", Pattern: `\r?\n`},
		{Name: "Bare", Pattern: `[^:\r\n]+(\r?\n|$)`},
		{Name: "Sep", Pattern: `:[ \t]*`, Action: lexer.Push("Value")},
		{Name: "Key", Pattern: `[^:\r\n]+`},
	},
	"Value": {
		{Name: "End", Pattern: `\r?\n`, Action: lexer.Pop()},
		{Name: "Value", Pattern: `[^\r\n]+`},
	},
})

type document struct {
	Entries []*entry `parser:"( @@ | Bare | EOL )*"`
}

type entry struct {
	Key   string `parser:"@Key Sep"`
	Value string `parser:"@Value? End?"`
}

var summaryParser = participle.MustBuild[document](
	participle.Lexer(summaryLexer),
)

// ParseEntries returns the key/value pairs of a summary file. Keys and
// values are trimmed; a repeated key keeps its last value.
func ParseEntries(name string, data []byte) (map[string]string, error) {
	doc, err := summaryParser.ParseBytes(name, data)
	if err != nil {
		return nil, fmt.Errorf("parse summary %s: %w", name, err)
	}

	entries := make(map[string]string, len(doc.Entries))
	for _, e := range doc.Entries {
		entries[strings.TrimSpace(e.Key)] = strings.TrimSpace(e.Value)
	}
	return entries, nil
}

// Parse decodes a summary record. Time and energy are required; every other
// key is optional and unknown keys are ignored. Records written without a
// status are treated as successful.
func Parse(name string, data []byte) (*Record, error) {
	entries, err := ParseEntries(name, data)
	if err != nil {
		return nil, err
	}

	r := &Record{
		Platform: entries[KeyPlatform],
		Command:  entries[KeyCommand],
		Success:  true,
	}

	timeStr, ok := entries[KeyTime]
	if !ok {
		return nil, fmt.Errorf("summary %s: missing %q", name, KeyTime)
	}
	if r.TimeSec, err = strconv.ParseFloat(timeStr, 64); err != nil {
		return nil, fmt.Errorf("summary %s: invalid %q value %q", name, KeyTime, timeStr)
	}

	energyStr, ok := entries[KeyEnergy]
	if !ok {
		return nil, fmt.Errorf("summary %s: missing %q", name, KeyEnergy)
	}
	if r.EnergyUJ, err = parseEnergy(energyStr); err != nil {
		return nil, fmt.Errorf("summary %s: invalid %q value %q", name, KeyEnergy, energyStr)
	}

	if v, ok := entries[KeyPower]; ok {
		if r.PowerW, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("summary %s: invalid %q value %q", name, KeyPower, v)
		}
	} else {
		r.PowerW = AveragePower(r.EnergyUJ, r.TimeSec)
	}

	if v, ok := entries[KeyTrial]; ok {
		if r.Trial, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("summary %s: invalid %q value %q", name, KeyTrial, v)
		}
	}
	if v, ok := entries[KeyExitCode]; ok {
		if r.ExitCode, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("summary %s: invalid %q value %q", name, KeyExitCode, v)
		}
	}
	if v, ok := entries[KeyStatus]; ok {
		r.Success = strings.EqualFold(v, StatusSuccess)
	}
	if v, ok := entries[KeyDatetime]; ok && v != "" {
		if r.Datetime, err = parseDatetime(v); err != nil {
			return nil, fmt.Errorf("summary %s: invalid %q value %q", name, KeyDatetime, v)
		}
	}

	return r, nil
}

func ReadFile(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary file: %w", err)
	}
	return Parse(path, data)
}

func parseEnergy(s string) (uint64, error) {
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("energy out of range")
	}
	return uint64(math.Round(f)), nil
}

func parseDatetime(s string) (time.Time, error) {
	for _, layout := range []string{DatetimeLayout, "2006-01-02T15:04:05.999999999", time.RFC3339Nano} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime")
}
