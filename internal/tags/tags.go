// package tags reads track identities from the metadata of audio files on disk.
//
// MP3 files are read through their ID3v2 frames and FLAC files through their Vorbis comment block.
package tags

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"

	"github.com/desertthunder/redlist/internal/models"
	"github.com/desertthunder/redlist/internal/shared"
)

// Read returns the identity stored in the tags of the audio file at path.
//
// The format is chosen by extension. Files without an artist or a title tag are rejected with
// [shared.ErrValidation].
func Read(path string) (models.Track, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return readID3(path)
	case ".flac":
		return readFLAC(path)
	default:
		return models.Track{}, fmt.Errorf("%w: unsupported audio file %s", shared.ErrInvalidInput, path)
	}
}

func readID3(path string) (models.Track, error) {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return models.Track{}, fmt.Errorf("failed to read ID3 tags from %s: %w", path, err)
	}
	defer tag.Close()

	opts := []models.TrackOption{models.WithAlbum(tag.Album())}

	// TLEN holds the length in milliseconds.
	if tlen := tag.GetTextFrame(tag.CommonID("Length")).Text; tlen != "" {
		if ms, err := strconv.Atoi(strings.TrimSpace(tlen)); err == nil {
			opts = append(opts, models.WithLengthMS(ms))
		}
	}

	track, err := models.NewTrack(tag.Artist(), tag.Title(), opts...)
	if err != nil {
		return models.Track{}, fmt.Errorf("%s: %w", path, err)
	}
	return track, nil
}

// readFLAC reads the metadata blocks only; the audio frames are never loaded.
func readFLAC(path string) (track models.Track, err error) {
	defer func() {
		if r := recover(); r != nil {
			track, err = models.Track{}, fmt.Errorf("%w: malformed FLAC file %s: %v", shared.ErrInvalidInput, path, r)
		}
	}()

	file, err := os.Open(path)
	if err != nil {
		return models.Track{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	f, err := flac.ParseMetadata(bufio.NewReader(file))
	if err != nil {
		return models.Track{}, fmt.Errorf("%w: failed to parse FLAC file %s: %v", shared.ErrInvalidInput, path, err)
	}

	var comment *flacvorbis.MetaDataBlockVorbisComment
	for _, block := range f.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}
		comment, err = flacvorbis.ParseFromMetaDataBlock(*block)
		if err != nil {
			return models.Track{}, fmt.Errorf("failed to parse Vorbis comments in %s: %w", path, err)
		}
		break
	}
	if comment == nil {
		return models.Track{}, fmt.Errorf("%w: %s has no Vorbis comments", shared.ErrValidation, path)
	}

	first := func(field string) string {
		values, err := comment.Get(field)
		if err != nil || len(values) == 0 {
			return ""
		}
		return values[0]
	}

	opts := []models.TrackOption{models.WithAlbum(first(flacvorbis.FIELD_ALBUM))}
	if info, err := f.GetStreamInfo(); err == nil && info.SampleRate > 0 {
		opts = append(opts, models.WithLength(float64(info.SampleCount)/float64(info.SampleRate)))
	}

	track, err = models.NewTrack(first(flacvorbis.FIELD_ARTIST), first(flacvorbis.FIELD_TITLE), opts...)
	if err != nil {
		return models.Track{}, fmt.Errorf("%s: %w", path, err)
	}
	return track, nil
}
