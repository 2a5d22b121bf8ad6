package tags

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bogem/id3v2"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"

	"github.com/desertthunder/redlist/internal/shared"
)

func writeMP3(t *testing.T, artist, title, album, tlen string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.mp3")

	tag := id3v2.NewEmptyTag()
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetArtist(artist)
	tag.SetTitle(title)
	tag.SetAlbum(album)
	if tlen != "" {
		tag.AddTextFrame("TLEN", id3v2.EncodingUTF8, tlen)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := tag.WriteTo(f); err != nil {
		t.Fatalf("failed to write tag: %v", err)
	}
	return path
}

// streamInfo builds a STREAMINFO block for 16-bit stereo audio.
func streamInfo(sampleRate, samples uint64) *flac.MetaDataBlock {
	data := make([]byte, 34)
	binary.BigEndian.PutUint16(data[0:2], 4096)
	binary.BigEndian.PutUint16(data[2:4], 4096)
	binary.BigEndian.PutUint64(data[10:18], sampleRate<<44|1<<41|15<<36|samples)
	return &flac.MetaDataBlock{Type: flac.StreamInfo, Data: data}
}

// frameHeader is the start of a fixed-blocksize FLAC frame.
var frameHeader = flac.FrameData{0xFF, 0xF8, 0x69, 0x08, 0x00, 0x00}

func writeFLAC(t *testing.T, fields map[string]string) string {
	t.Helper()
	return saveFLAC(t, fields, frameHeader)
}

func saveFLAC(t *testing.T, fields map[string]string, frames flac.FrameData) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "track.flac")

	f := &flac.File{Meta: []*flac.MetaDataBlock{streamInfo(44100, 44100*200)}, Frames: frames}
	if fields != nil {
		comment := flacvorbis.New()
		for k, v := range fields {
			if err := comment.Add(k, v); err != nil {
				t.Fatal(err)
			}
		}
		block := comment.Marshal()
		f.Meta = append(f.Meta, &block)
	}

	if err := f.Save(path); err != nil {
		t.Fatalf("failed to write flac file: %v", err)
	}
	return path
}

func TestRead(t *testing.T) {
	t.Run("MP3", func(t *testing.T) {
		path := writeMP3(t, "Up, Bustle & Out", "1, 2, 3 Alto Y Fuera", "One Colour Just Reflects Another", "245000")

		track, err := Read(path)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if track.Artist != "Up, Bustle & Out" || track.Title != "1, 2, 3 Alto Y Fuera" {
			t.Errorf("unexpected track %s", track)
		}
		if track.Album != "One Colour Just Reflects Another" {
			t.Errorf("album = %q", track.Album)
		}
		if track.Length != 245 {
			t.Errorf("length = %v, want 245", track.Length)
		}
	})

	t.Run("MP3 Without Length", func(t *testing.T) {
		track, err := Read(writeMP3(t, "Artist", "Song", "", ""))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if track.Length != 0 || track.Album != "" {
			t.Errorf("unexpected optional fields %+v", track)
		}
	})

	t.Run("MP3 Without Title", func(t *testing.T) {
		if _, err := Read(writeMP3(t, "Artist", "", "", "")); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("FLAC", func(t *testing.T) {
		path := writeFLAC(t, map[string]string{
			flacvorbis.FIELD_ARTIST: "Sigur Rós",
			flacvorbis.FIELD_TITLE:  "Hoppípolla",
			flacvorbis.FIELD_ALBUM:  "Takk...",
		})

		track, err := Read(path)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if track.Artist != "Sigur Rós" || track.Title != "Hoppípolla" || track.Album != "Takk..." {
			t.Errorf("unexpected track %s", track)
		}
		if track.Length != 200 {
			t.Errorf("length = %v, want 200", track.Length)
		}
	})

	t.Run("FLAC Without Comments", func(t *testing.T) {
		if _, err := Read(writeFLAC(t, nil)); !errors.Is(err, shared.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("FLAC Without Audio Frames", func(t *testing.T) {
		path := saveFLAC(t, map[string]string{
			flacvorbis.FIELD_ARTIST: "Múm",
			flacvorbis.FIELD_TITLE:  "Green Grass of Tunnel",
		}, nil)

		track, err := Read(path)
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if track.Title != "Green Grass of Tunnel" {
			t.Errorf("unexpected track %s", track)
		}
	})

	t.Run("Truncated FLAC", func(t *testing.T) {
		path := writeFLAC(t, map[string]string{
			flacvorbis.FIELD_ARTIST: "Múm",
			flacvorbis.FIELD_TITLE:  "Green Grass of Tunnel",
		})
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		// Cut inside the STREAMINFO block.
		if err := os.WriteFile(path, data[:20], 0644); err != nil {
			t.Fatal(err)
		}

		if _, err := Read(path); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Not A FLAC File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fake.flac")
		if err := os.WriteFile(path, []byte("ID3 not flac"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Read(path); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		if _, err := Read("notes.txt"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Missing File", func(t *testing.T) {
		if _, err := Read(filepath.Join(t.TempDir(), "gone.flac")); err == nil {
			t.Error("expected an error for a missing file")
		}
	})
}
