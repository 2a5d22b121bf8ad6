// package formatter reads playlists from track lists and m3u files and writes m3u playlists,
// CSV exports and plain text summaries.
package formatter

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/desertthunder/redlist/internal/models"
	"github.com/desertthunder/redlist/internal/shared"
	"github.com/desertthunder/redlist/internal/tasks"
)

// FieldSeparator separates the positional fields of a track list line.
const FieldSeparator = " , "

const m3uHeader = "#EXTM3U"

// Entry is one playlist position: a file on disk, a track still to be found, or both.
type Entry struct {
	Path  string // empty until the track is matched to a file
	Track models.Track
}

// Matched reports whether the entry points at a file.
func (e Entry) Matched() bool { return e.Path != "" }

// PathLookup returns the identity of the library file at path.
type PathLookup func(path string) (models.Track, error)

// IsM3U reports whether name has an m3u extension.
func IsM3U(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".m3u", ".m3u8":
		return true
	}
	return false
}

// ReadTrackList parses a text list with one track per line: artist , title [, album [, length]].
//
// Blank lines are skipped. A malformed line fails with its line number.
func ReadTrackList(r io.Reader) ([]models.Track, error) {
	var tracks []models.Track
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		track, err := models.FromFields(strings.Split(line, FieldSeparator)...)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		tracks = append(tracks, track)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read track list: %w", err)
	}
	return tracks, nil
}

// ReadM3U parses an m3u playlist.
//
// Path lines become matched entries whose Track is filled by lookup; paths the lookup cannot
// resolve are dropped. "# TrackInfo(...)" comments become unmatched entries. Other comments,
// including #EXTM3U and #EXTINF, are ignored.
func ReadM3U(r io.Reader, lookup PathLookup) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "#"):
			body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
			if !strings.HasPrefix(body, "TrackInfo(") {
				continue
			}
			track, err := models.ParseTrack(body)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", n, err)
			}
			entries = append(entries, Entry{Track: track})
		default:
			if lookup == nil {
				entries = append(entries, Entry{Path: line})
				continue
			}
			track, err := lookup(line)
			if err != nil {
				continue
			}
			entries = append(entries, Entry{Path: line, Track: track})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read m3u: %w", err)
	}
	return entries, nil
}

// ReadPlaylist reads the playlist file at path, as an m3u or as a track list depending on its
// extension. The playlist is named after the file.
func ReadPlaylist(path string, lookup PathLookup) (models.Playlist, []Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Playlist{}, nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, path)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	playlist := models.Playlist{ID: path, Name: name, Source: "file"}

	var entries []Entry
	if IsM3U(path) {
		entries, err = ReadM3U(f, lookup)
	} else {
		var tracks []models.Track
		tracks, err = ReadTrackList(f)
		entries = Entries(tracks)
	}
	if err != nil {
		return models.Playlist{}, nil, fmt.Errorf("%s: %w", path, err)
	}

	for _, e := range entries {
		playlist.Tracks = append(playlist.Tracks, e.Track)
	}
	return playlist, entries, nil
}

// Entries wraps tracks as unmatched entries.
func Entries(tracks []models.Track) []Entry {
	entries := make([]Entry, len(tracks))
	for i, t := range tracks {
		entries[i] = Entry{Track: t}
	}
	return entries
}

// ExportToM3U renders entries as an m3u playlist: matched entries as path lines and the rest as
// "# TrackInfo(json='...')" comments that ReadM3U can read back.
func ExportToM3U(entries []Entry) []byte {
	var buf bytes.Buffer
	buf.WriteString(m3uHeader + "\n")
	for _, e := range entries {
		if e.Matched() {
			buf.WriteString(e.Path + "\n")
			continue
		}
		buf.WriteString("# " + e.Track.Serialize() + "\n")
	}
	return buf.Bytes()
}

// WriteM3U writes entries to path, creating its directory.
func WriteM3U(path string, entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, ExportToM3U(entries), 0644); err != nil {
		return fmt.Errorf("failed to write m3u file: %w", err)
	}
	return nil
}

// ExportToText converts tracks to the track list format read by ReadTrackList.
func ExportToText(tracks []models.Track) []byte {
	var buf bytes.Buffer
	for _, t := range tracks {
		fields := []string{t.Artist, t.Title}
		if t.Album != "" || t.Length > 0 {
			fields = append(fields, t.Album)
		}
		if t.Length > 0 {
			fields = append(fields, strconv.FormatFloat(t.Length, 'f', -1, 64))
		}
		buf.WriteString(strings.Join(fields, FieldSeparator) + "\n")
	}
	return buf.Bytes()
}

// ExportToCSV converts resolution records to CSV with columns:
// Position, Artist, Title, Album, Phase, Release, Artifact, Error
func ExportToCSV(records []*models.ResolutionRecord) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Artist", "Title", "Album", "Phase", "Release", "Artifact", "Error"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, rec := range records {
		artifact := ""
		if rec.Found() {
			artifact = strconv.Itoa(rec.ArtifactID)
		}
		record := []string{
			strconv.Itoa(rec.Position + 1),
			rec.Track.Artist,
			rec.Track.Title,
			rec.Track.Album,
			rec.Phase,
			rec.ReleaseName,
			artifact,
			rec.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// Summary renders the outcome of a resolution batch: counts, downloads and the tracks that were
// not found.
func Summary(result *tasks.BatchResult) string {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Batch: %s\n", result.BatchID))
	buf.WriteString(fmt.Sprintf("Resolved: %d/%d (%.1f%%) in %s\n",
		result.Matched, result.Total, result.MatchPercentage(), result.Elapsed.Round(time.Millisecond)))
	buf.WriteString(fmt.Sprintf("Downloads: %d (%s)\n", len(result.Downloads), humanize.IBytes(uint64(tasks.TotalSize(result.Downloads)))))

	if len(result.Downloads) > 0 {
		buf.WriteString("\n")
		for _, res := range result.Downloads {
			a, _ := res.Artifact()
			buf.WriteString(fmt.Sprintf("  %d\t%s [%s]\n", a.ID, res.Release.DisplayName(), a.Descriptor()))
		}
	}

	if len(result.Unresolved) > 0 {
		buf.WriteString(fmt.Sprintf("\nNot found (%d):\n", len(result.Unresolved)))
		for _, t := range result.Unresolved {
			buf.WriteString(fmt.Sprintf("  %s\n", t))
		}
	}

	if failures := result.Failures(); len(failures) > 0 {
		buf.WriteString(fmt.Sprintf("\nErrors (%d):\n", len(failures)))
		for _, res := range failures {
			buf.WriteString(fmt.Sprintf("  %s: %v\n", res.Track, res.Err))
		}
	}

	return buf.String()
}

// BatchTable renders stored batch summaries, one per line.
func BatchTable(batches []models.BatchSummary) string {
	var buf bytes.Buffer
	for _, b := range batches {
		buf.WriteString(fmt.Sprintf("%s  %3d/%-3d  %s\n", b.BatchID, b.Found, b.Total, humanize.Time(b.StartedAt)))
	}
	return buf.String()
}
