/*
legacy.go - Loosely-typed legacy records and snapshot loading

Legacy data comes from a client-side key/value store with no schema
enforcement: field names drifted over the years ("projectId" vs
"project_id"), numbers were stored as JSON numbers or strings, and
whole fields are simply missing from older records. Record wraps one
such object and gives the mapping layer total accessors: every getter
takes a list of accepted aliases and returns a zero value when none
are present, so no record is ever rejected for incomplete data.

Unknown extra fields are ignored by construction - accessors only look
at the keys they are given.
*/
package consolidate

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// Record is one loosely-typed legacy object, as decoded from JSON.
type Record map[string]any

// Str returns the first present alias as a string, or "".
func (r Record) Str(aliases ...string) string {
	for _, k := range aliases {
		v, ok := r[k]
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			return s
		case fmt.Stringer:
			return s.String()
		}
	}
	return ""
}

// Int returns the first present alias as an int64, or 0. JSON numbers
// decode as float64; legacy exports also carry numeric strings.
func (r Record) Int(aliases ...string) int64 {
	for _, k := range aliases {
		v, ok := r[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return int64(n)
		case int64:
			return n
		case int:
			return int64(n)
		case json.Number:
			i, err := n.Int64()
			if err == nil {
				return i
			}
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err == nil {
				return i
			}
		}
	}
	return 0
}

// Float returns the first present alias as a float64, or 0.
func (r Record) Float(aliases ...string) float64 {
	for _, k := range aliases {
		v, ok := r[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n
		case int64:
			return float64(n)
		case int:
			return float64(n)
		case json.Number:
			f, err := n.Float64()
			if err == nil {
				return f
			}
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err == nil {
				return f
			}
		}
	}
	return 0
}

// Money returns the first present alias as an exact decimal, or zero.
// Accepts JSON numbers and numeric strings; anything unparseable is
// treated as absent.
func (r Record) Money(aliases ...string) decimal.Decimal {
	for _, k := range aliases {
		v, ok := r[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return decimal.NewFromFloat(n)
		case json.Number:
			d, err := decimal.NewFromString(n.String())
			if err == nil {
				return d
			}
		case string:
			d, err := decimal.NewFromString(n)
			if err == nil {
				return d
			}
		}
	}
	return decimal.Zero
}

// Has reports whether any of the aliases is present, regardless of value.
func (r Record) Has(aliases ...string) bool {
	for _, k := range aliases {
		if _, ok := r[k]; ok {
			return true
		}
	}
	return false
}

// Ref builds a short human-readable reference for failure reports:
// the record's own legacy id if it has one, else its name/title, else
// a placeholder.
func (r Record) Ref() string {
	if id := r.Int("id", "legacyId", "legacy_id"); id != 0 {
		return fmt.Sprintf("#%d", id)
	}
	if name := r.Str("name", "title", "projectName", "project_name"); name != "" {
		return name
	}
	return "(unidentified)"
}

// Snapshot is one legacy source's full export, partitioned by kind.
// Cue records arrive batched under their project reference (the legacy
// store sheeted cues per project); every other kind carries its project
// reference inline.
type Snapshot struct {
	Projects  []Record            `json:"projects"`
	Scopes    []Record            `json:"scopes"`
	Estimates []Record            `json:"estimates"`
	Cues      map[string][]Record `json:"cues"`
	Invoices  []Record            `json:"invoices"`
	Payments  []Record            `json:"payments"`
}

// Count returns the total number of records across all kinds.
func (s *Snapshot) Count() int {
	n := len(s.Projects) + len(s.Scopes) + len(s.Estimates) + len(s.Invoices) + len(s.Payments)
	for _, batch := range s.Cues {
		n += len(batch)
	}
	return n
}

// ParseSnapshot decodes a legacy export from JSON.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse legacy snapshot: %w", err)
	}
	return &snap, nil
}

// LoadSnapshot reads and decodes a legacy export file.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy snapshot: %w", err)
	}
	return ParseSnapshot(data)
}
