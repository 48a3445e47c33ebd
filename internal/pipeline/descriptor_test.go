package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVolumeLabel(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"summer mix", "Summer Mix"},
		{"  backup 2026  ", "Backup 2026"},
		{"", "Untitled Disc"},
		{"ALREADY LOUD", "Already Loud"},
	}
	for _, tc := range cases {
		if got := VolumeLabel(tc.raw); got != tc.want {
			t.Errorf("VolumeLabel(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestWriteCueSheet(t *testing.T) {
	dir := t.TempDir()
	tracks := []string{
		filepath.Join(dir, "track01.wav"),
		filepath.Join(dir, "track02.wav"),
	}
	for _, track := range tracks {
		if err := os.WriteFile(track, []byte("RIFF"), 0o644); err != nil {
			t.Fatalf("write track: %v", err)
		}
	}

	path := filepath.Join(dir, "disc.cue")
	if err := writeCueSheet(path, "summer mix", tracks); err != nil {
		t.Fatalf("writeCueSheet: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cue sheet: %v", err)
	}
	content := string(data)
	for _, want := range []string{
		`TITLE "Summer Mix"`,
		`FILE "track01.wav" WAVE`,
		"TRACK 01 AUDIO",
		`FILE "track02.wav" WAVE`,
		"TRACK 02 AUDIO",
		"INDEX 01 00:00:00",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("cue sheet missing %q:\n%s", want, content)
		}
	}
}

func TestWriteCueSheetMissingTrack(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "track01.wav")
	if err := os.WriteFile(present, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write track: %v", err)
	}
	missing := filepath.Join(dir, "track02.wav")

	err := writeCueSheet(filepath.Join(dir, "disc.cue"), "x", []string{present, missing})
	if err == nil {
		t.Fatal("expected error for missing prepared track")
	}
	if !strings.Contains(err.Error(), "track02.wav") {
		t.Fatalf("error should name the missing track, got %v", err)
	}
}

func TestWriteCueSheetUnpreparedSlot(t *testing.T) {
	dir := t.TempDir()
	if err := writeCueSheet(filepath.Join(dir, "disc.cue"), "x", []string{""}); err == nil {
		t.Fatal("expected error for unprepared track slot")
	}
}
