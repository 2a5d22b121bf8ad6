package matching

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/desertthunder/redlist/internal/models"
	"github.com/desertthunder/redlist/internal/shared"
)

// Acceptance thresholds on [Distance.Value].
const (
	// SameTrack accepts a candidate file or library item as the queried track (strictly below).
	SameTrack = 0.3
	// ReleaseCandidate keeps a release for file-level checks (at or below).
	ReleaseCandidate = 0.5
	// SameArtist accepts a credited name as the queried artist (at or below).
	SameArtist = 0.1
)

// Matcher computes distances with a fixed set of weights and length tolerances.
type Matcher struct {
	weights     map[string]float64
	lengthGrace float64
	lengthMax   float64
}

// NewMatcher builds a Matcher from config, filling unset weights from [DefaultWeights].
func NewMatcher(config shared.MatchingConfig) *Matcher {
	weights := maps.Clone(DefaultWeights)
	for k, v := range config.Weights {
		weights[k] = v
	}

	m := &Matcher{weights: weights, lengthGrace: config.LengthGrace, lengthMax: config.LengthMax}
	if m.lengthMax <= 0 {
		m.lengthMax = 30
	}
	if m.lengthGrace < 0 {
		m.lengthGrace = 0
	}
	return m
}

// DefaultMatcher uses the default weights, a 10 second grace and a 30 second maximum.
func DefaultMatcher() *Matcher {
	return NewMatcher(shared.MatchingConfig{LengthGrace: 10, LengthMax: 30})
}

// NewDistance returns an empty distance using the matcher's weights.
func (m *Matcher) NewDistance() *Distance {
	return NewDistance(m.weights)
}

// Track scores candidate against query.
//
// Title is always compared. Artist is skipped when either side is a various-artists placeholder,
// length only counts when both sides know it, and album only when restrictAlbum is set and both
// sides carry one.
func (m *Matcher) Track(query, candidate models.Track, restrictAlbum bool) *Distance {
	d := m.NewDistance()
	d.AddString(KeyTitle, query.Title, candidate.Title)

	if !models.IsVariousArtists(query.Artist) && !models.IsVariousArtists(candidate.Artist) {
		d.AddString(KeyTrackArtist, query.Artist, candidate.Artist)
	}

	if query.Length > 0 && candidate.Length > 0 {
		diff := math.Abs(query.Length-candidate.Length) - m.lengthGrace
		d.AddRatio(KeyLength, diff, m.lengthMax)
	}

	if restrictAlbum && query.Album != "" && candidate.Album != "" {
		d.AddString(KeyAlbum, query.Album, candidate.Album)
	}
	return d
}

// Release scores a catalog group against query using the matched artist credit and the group name.
func (m *Matcher) Release(query models.Track, artistMatch string, release models.Release) *Distance {
	d := m.NewDistance()
	d.AddString(KeyArtist, query.Artist, artistMatch)
	if query.Album != "" {
		d.AddString(KeyAlbum, query.Album, release.DisplayName())
	}
	return d
}

// MatchArtist returns the credited name closest to artist, if it is within [SameArtist].
//
// Names are tried in sorted order and ties keep the earlier name, so the result does not depend
// on the order credits arrived in.
func (m *Matcher) MatchArtist(artist string, credited []string) (string, float64, bool) {
	names := slices.Clone(credited)
	slices.Sort(names)

	best, bestDist := "", math.Inf(1)
	for _, name := range names {
		d := m.NewDistance()
		d.AddString(KeyArtist, artist, name)
		if v := d.Value(); v < bestDist {
			best, bestDist = name, v
		}
	}

	if best == "" || bestDist > SameArtist {
		return "", bestDist, false
	}
	return best, bestDist, true
}

// LibrarySource looks up local library items whose field contains value.
type LibrarySource interface {
	Lookup(ctx context.Context, field, value string) ([]*models.LibraryItem, error)
}

// LibraryMatch pairs a playlist track with the library item it was matched to.
type LibraryMatch struct {
	Track    models.Track
	Item     *models.LibraryItem
	Distance float64
}

// MatchLibrary looks each track up in the local library by title, then album, then artist, and
// keeps the closest item of the first lookup that yields one below [SameTrack].
//
// The returned slices preserve the order of tracks.
func (m *Matcher) MatchLibrary(ctx context.Context, lib LibrarySource, tracks []models.Track, restrictAlbum bool) ([]LibraryMatch, []models.Track, error) {
	var matched []LibraryMatch
	var missing []models.Track

	for _, track := range tracks {
		match, ok, err := m.matchOne(ctx, lib, track, restrictAlbum)
		if err != nil {
			return nil, nil, fmt.Errorf("library lookup for %q failed: %w", track.String(), err)
		}
		if ok {
			matched = append(matched, match)
			continue
		}
		missing = append(missing, track)
	}
	return matched, missing, nil
}

func (m *Matcher) matchOne(ctx context.Context, lib LibrarySource, track models.Track, restrictAlbum bool) (LibraryMatch, bool, error) {
	queries := []struct{ field, value string }{
		{"title", track.Title},
		{"album", track.Album},
		{"artist", track.Artist},
	}

	for _, q := range queries {
		if q.value == "" || (q.field == "artist" && models.IsVariousArtists(q.value)) {
			continue
		}

		items, err := lib.Lookup(ctx, q.field, q.value)
		if err != nil {
			return LibraryMatch{}, false, err
		}

		var best *models.LibraryItem
		bestDist := math.Inf(1)
		for _, item := range items {
			if v := m.Track(track, item.Track, restrictAlbum).Value(); v < bestDist {
				best, bestDist = item, v
			}
		}

		if best != nil && bestDist < SameTrack {
			return LibraryMatch{Track: track, Item: best, Distance: bestDist}, true, nil
		}
	}
	return LibraryMatch{}, false, nil
}
