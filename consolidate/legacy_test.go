package consolidate

import (
	"testing"

	"github.com/quartertone/studio-engine/studio"
)

func TestRecord_AccessorsAcceptDriftedShapes(t *testing.T) {
	rec := Record{
		"projectId":    float64(7),
		"minutesStr":   "45",
		"hoursFloat":   8.5,
		"hoursStr":     "6.25",
		"amountNum":    float64(450.75),
		"amountStr":    "1200.50",
		"title":        "Main Title",
		"weirdNumeric": "not-a-number",
	}

	if got := rec.Int("projectId"); got != 7 {
		t.Errorf("Int on float64: expected 7, got %d", got)
	}
	if got := rec.Int("minutesStr"); got != 45 {
		t.Errorf("Int on numeric string: expected 45, got %d", got)
	}
	if got := rec.Int("missing", "alsoMissing"); got != 0 {
		t.Errorf("Int on absent keys must default to 0, got %d", got)
	}
	if got := rec.Int("weirdNumeric"); got != 0 {
		t.Errorf("Int on junk must default to 0, got %d", got)
	}
	if got := rec.Float("hoursFloat"); got != 8.5 {
		t.Errorf("Float: expected 8.5, got %v", got)
	}
	if got := rec.Float("hoursStr"); got != 6.25 {
		t.Errorf("Float on string: expected 6.25, got %v", got)
	}
	if got := rec.Money("amountStr"); !got.Equal(studio.MustDecimal("1200.50")) {
		t.Errorf("Money on string: expected 1200.50, got %s", got)
	}
	if got := rec.Money("amountNum"); !got.Equal(studio.MustDecimal("450.75")) {
		t.Errorf("Money on number: expected 450.75, got %s", got)
	}
	if got := rec.Money("missing"); !got.IsZero() {
		t.Errorf("Money on absent key must be zero, got %s", got)
	}
	if got := rec.Str("title"); got != "Main Title" {
		t.Errorf("Str: expected Main Title, got %q", got)
	}
	if got := rec.Str("nope"); got != "" {
		t.Errorf("Str on absent key must be empty, got %q", got)
	}
}

func TestRecord_AliasOrder(t *testing.T) {
	// First present alias wins, even when later aliases also exist.
	rec := Record{"music_minutes": float64(30), "minutes": float64(99)}

	if got := rec.Int("musicMinutes", "music_minutes", "minutes"); got != 30 {
		t.Errorf("expected first present alias (30), got %d", got)
	}
}

func TestRecord_Ref(t *testing.T) {
	cases := []struct {
		rec  Record
		want string
	}{
		{Record{"id": float64(42), "name": "Ignored"}, "#42"},
		{Record{"title": "Main Title"}, "Main Title"},
		{Record{}, "(unidentified)"},
	}
	for _, tc := range cases {
		if got := tc.rec.Ref(); got != tc.want {
			t.Errorf("Ref() = %q, expected %q", got, tc.want)
		}
	}
}

func TestParseSnapshot(t *testing.T) {
	data := []byte(`{
		"projects": [{"id": 7, "name": "Foo Trailer"}],
		"cues": {"7": [{"number": 1, "title": "Rise"}]},
		"unknown_top_level": "ignored"
	}`)

	snap, err := ParseSnapshot(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(snap.Projects) != 1 {
		t.Errorf("expected 1 project, got %d", len(snap.Projects))
	}
	if len(snap.Cues["7"]) != 1 {
		t.Errorf("expected 1 cue under key 7, got %d", len(snap.Cues["7"]))
	}
	if snap.Count() != 2 {
		t.Errorf("expected count 2, got %d", snap.Count())
	}
}

func TestParseSnapshot_Malformed(t *testing.T) {
	if _, err := ParseSnapshot([]byte("{nope")); err == nil {
		t.Fatal("expected parse error")
	}
}
