package models

import (
	"encoding/json"
	"slices"
	"testing"
)

func TestRelease(t *testing.T) {
	const payload = `{
		"groupId": 72189,
		"groupName": "One Colour Just Reflects Another",
		"artist": "Up, Bustle &amp; Out",
		"groupYear": 1996,
		"releaseType": "Album",
		"torrents": [
			{"torrentId": 969405, "format": "MP3", "encoding": "V0 (VBR)", "media": "CD", "size": 101, "snatches": 9, "seeders": 3,
			 "artists": [{"id": 1, "name": "Up, Bustle &amp; Out"}, {"id": 2, "name": "Various Artists"}]},
			{"torrentId": 969406, "format": "FLAC", "encoding": "Lossless", "media": "CD",
			 "artists": [{"id": 3, "name": "Ras Jabulani"}]}
		],
		"musicInfo": {"guest": [{"id": 4, "name": "Rudy"}], "producer": [{"id": 5, "name": "VA"}]}
	}`

	var r Release
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		t.Fatalf("failed to decode release: %v", err)
	}

	t.Run("Artists", func(t *testing.T) {
		want := []string{"ras jabulani", "rudy", "up, bustle & out"}
		if got := r.Artists(); !slices.Equal(got, want) {
			t.Errorf("Artists() = %v, want %v", got, want)
		}
	})

	t.Run("Descriptor", func(t *testing.T) {
		if got := r.Artifacts[0].Descriptor(); got != "MP3 V0 (VBR) CD" {
			t.Errorf("Descriptor() = %q", got)
		}
		if (Artifact{}).Described() {
			t.Error("empty artifact should not be described")
		}
	})

	t.Run("Narrow", func(t *testing.T) {
		c := r
		if _, ok := c.Selected(); ok {
			t.Error("release with two artifacts has no selection")
		}
		c.Narrow(r.Artifacts[1])
		got, ok := c.Selected()
		if !ok || got.ID != 969406 {
			t.Errorf("Selected() = %v, %v", got.ID, ok)
		}
		if len(r.Artifacts) != 2 {
			t.Error("narrowing a copy must not touch the original slice header")
		}
	})

	t.Run("Files", func(t *testing.T) {
		a := Artifact{FileList: "01 - Intro.mp3{{{123}}}|||02 - Song.mp3{{{456}}}"}
		if got := a.Files(); len(got) != 2 || got[1] != "02 - Song.mp3{{{456}}}" {
			t.Errorf("Files() = %v", got)
		}
		if (Artifact{}).Files() != nil {
			t.Error("expected nil for empty file list")
		}
	})

	t.Run("IsVariousArtists", func(t *testing.T) {
		for _, name := range []string{"", " VA ", "Various Artists", "unknown"} {
			if !IsVariousArtists(name) {
				t.Errorf("expected %q to be a placeholder", name)
			}
		}
		if IsVariousArtists("Vangelis") {
			t.Error("Vangelis is a real artist")
		}
	})
}
