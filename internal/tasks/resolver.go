package tasks

import (
	"cmp"
	"context"
	"fmt"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/redlist/internal/matching"
	"github.com/desertthunder/redlist/internal/models"
	"github.com/desertthunder/redlist/internal/services"
	"github.com/desertthunder/redlist/internal/shared"
)

// Phase is a state of the release search.
type Phase int

const (
	PhaseNarrow Phase = iota
	PhaseWiden
	PhaseArtistOnly
	PhaseSplitArtist
	PhaseFound
	PhaseNotFound
	PhaseNoPreferred
)

func (p Phase) String() string {
	switch p {
	case PhaseNarrow:
		return "narrow"
	case PhaseWiden:
		return "widen"
	case PhaseArtistOnly:
		return "artist_only"
	case PhaseSplitArtist:
		return "split_artist"
	case PhaseFound:
		return "found"
	case PhaseNotFound:
		return "not_found"
	case PhaseNoPreferred:
		return "no_preferred"
	default:
		return ""
	}
}

// Terminal reports whether the search stops in p.
func (p Phase) Terminal() bool {
	return p == PhaseFound || p == PhaseNotFound || p == PhaseNoPreferred
}

// OutcomeKind tags the result of running one phase.
type OutcomeKind int

const (
	Miss OutcomeKind = iota
	Hit
	NoPreferred
	Failed
)

// Outcome is what a single phase produced.
type Outcome struct {
	Kind     OutcomeKind
	Release  *models.Release // set for Hit and NoPreferred
	Distance float64
	Err      error // set for Failed
}

// nextPhase is the transition function of the search.
//
// A miss walks Narrow, Widen, ArtistOnly and then, for an unrestricted search of a compound
// artist that has not been split yet, SplitArtist, which restarts at Narrow.
func nextPhase(phase Phase, outcome Outcome, track models.Track, restrictAlbum, retried bool) Phase {
	switch outcome.Kind {
	case Hit:
		return PhaseFound
	case NoPreferred:
		return PhaseNoPreferred
	case Failed:
		return PhaseNotFound
	}

	switch phase {
	case PhaseNarrow:
		return PhaseWiden
	case PhaseWiden:
		return PhaseArtistOnly
	case PhaseArtistOnly:
		if restrictAlbum || retried || !strings.Contains(track.Artist, ",") {
			return PhaseNotFound
		}
		return PhaseSplitArtist
	case PhaseSplitArtist:
		return PhaseNarrow
	default:
		return PhaseNotFound
	}
}

// Resolution is the result of resolving one track.
type Resolution struct {
	Track    models.Track    // track as requested
	Query    models.Track    // identity last searched for; differs from Track after a split
	Phase    Phase           // terminal phase
	FoundIn  Phase           // phase that produced the hit
	Release  *models.Release // narrowed to the chosen artifact when found; the lone candidate for NoPreferred
	Distance float64
	Err      error
}

// Found reports whether the track resolved to an artifact.
func (r *Resolution) Found() bool {
	return r.Phase == PhaseFound && r.Release != nil
}

// Artifact returns the chosen artifact of a found resolution.
func (r *Resolution) Artifact() (models.Artifact, bool) {
	if !r.Found() {
		return models.Artifact{}, false
	}
	return r.Release.Selected()
}

// ArtifactID returns the chosen artifact id, or zero.
func (r *Resolution) ArtifactID() int {
	a, _ := r.Artifact()
	return a.ID
}

// Record converts r into a storable record at position within batchID.
func (r *Resolution) Record(batchID string, position int) *models.ResolutionRecord {
	rec := models.NewResolutionRecord(batchID, position, r.Track)
	rec.Phase = r.Phase.String()
	if r.Found() {
		rec.ReleaseID = r.Release.ID
		rec.ReleaseName = r.Release.DisplayName()
		rec.ArtifactID = r.ArtifactID()
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// Preferences are compiled format preferences, in priority order.
type Preferences []*regexp.Regexp

// CompilePreferences compiles each pattern case-insensitively and anchored at the start.
func CompilePreferences(patterns []string) (Preferences, error) {
	prefs := make(Preferences, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)^(?:` + p + `)`)
		if err != nil {
			return nil, fmt.Errorf("%w: format preference %q: %v", shared.ErrInvalidConfig, p, err)
		}
		prefs = append(prefs, re)
	}
	return prefs, nil
}

// key is one 0/1 flag per preference, then negated snatches, then negated seeders.
func (p Preferences) key(a models.Artifact) ([]int, bool) {
	k := make([]int, 0, len(p)+2)
	matched := len(p) == 0
	desc := a.Descriptor()
	for _, re := range p {
		if re.MatchString(desc) {
			k = append(k, 0)
			matched = true
		} else {
			k = append(k, 1)
		}
	}
	return append(k, -a.Snatches, -a.Seeders), matched
}

// ChoosePreferred returns the artifact of release with the smallest preference key.
//
// Artifacts without a format description, and those matching none of a non-empty preference
// list, are not eligible. Ties keep the earlier artifact.
func ChoosePreferred(release models.Release, prefs Preferences) (models.Artifact, bool) {
	var best models.Artifact
	var bestKey []int
	for _, a := range release.Artifacts {
		if !a.Described() {
			continue
		}
		k, ok := prefs.key(a)
		if !ok {
			continue
		}
		if bestKey == nil || slices.Compare(k, bestKey) < 0 {
			best, bestKey = a, k
		}
	}
	return best, bestKey != nil
}

var (
	audioFileRe   = regexp.MustCompile(`(?i)^(.+)\.(mp3|flac|ogg|mp4|m4a|ac3|dts)\{.*$`)
	trailParenRe  = regexp.MustCompile(`\(.*\)$`)
	trackNumberRe = regexp.MustCompile(`^\d+[^\p{L}\p{N}_]+`)
)

// normalizeFilename turns a file list entry into a title comparable with query.
//
// artistRe strips everything up to and including the query artist.
func normalizeFilename(entry string, query models.Track, artistRe *regexp.Regexp) (string, bool) {
	m := audioFileRe.FindStringSubmatch(entry)
	if m == nil {
		return "", false
	}

	name := strings.ToLower(path.Base(m[1]))
	name = artistRe.ReplaceAllString(name, "")
	if !strings.HasSuffix(query.Title, ")") {
		name = trailParenRe.ReplaceAllString(name, "")
	}
	name = strings.TrimSpace(trackNumberRe.ReplaceAllString(name, ""))
	return name, name != ""
}

func artistPrefix(artist string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^.*` + regexp.QuoteMeta(artist) + `[^\p{L}\p{N}_]+`)
}

// Resolver finds a release and artifact in the catalog for a track.
//
// A Resolver holds no per-track state and may be shared by concurrent callers.
type Resolver struct {
	catalog services.Catalog
	matcher *matching.Matcher
	prefs   Preferences
	logger  *log.Logger
}

// NewResolver creates a Resolver that queries catalog and ranks artifacts by prefs.
func NewResolver(catalog services.Catalog, matcher *matching.Matcher, prefs Preferences, logger *log.Logger) *Resolver {
	if matcher == nil {
		matcher = matching.DefaultMatcher()
	}
	return &Resolver{
		catalog: catalog,
		matcher: matcher,
		prefs:   prefs,
		logger:  shared.WithLogger(logger, "component", "resolver"),
	}
}

// Resolve runs the phased search for track.
//
// The returned Resolution always carries a terminal phase. A track that cannot be found, or
// whose only release has no preferred artifact, is not an error. The error is non-nil only
// when a catalog call or query validation failed, and is also stored in Resolution.Err.
func (r *Resolver) Resolve(ctx context.Context, track models.Track, restrictAlbum bool) (*Resolution, error) {
	res := &Resolution{Track: track, Query: track, Phase: PhaseNotFound}
	query, retried := track, false

	phase := PhaseNarrow
	for !phase.Terminal() {
		if phase == PhaseSplitArtist {
			cleaned, changed := query.CleanFeaturedArtist()
			if !changed {
				res.Phase = PhaseNotFound
				break
			}
			r.logger.Info("suspect multi-artist track, searching again", "track", cleaned.String())
			query, retried = cleaned, true
			res.Query = cleaned
			phase = nextPhase(phase, Outcome{Kind: Miss}, query, restrictAlbum, retried)
			continue
		}

		outcome := r.runPhase(ctx, phase, query, restrictAlbum)
		next := nextPhase(phase, outcome, query, restrictAlbum, retried)
		r.logger.Debug("phase done", "track", query.String(), "phase", phase, "next", next)

		switch next {
		case PhaseFound:
			res.Release, res.Distance, res.FoundIn = outcome.Release, outcome.Distance, phase
		case PhaseNoPreferred:
			res.Release = outcome.Release
			r.logger.Info("no artifact fits the format preferences", "track", query.String(), "release", outcome.Release.DisplayName())
		case PhaseNotFound:
			res.Err = outcome.Err
		}
		res.Phase = next
		phase = next
	}

	if res.Phase == PhaseNotFound && res.Err == nil {
		r.logger.Info("could not find a release, giving up", "track", track.String())
	}
	return res, res.Err
}

// fields builds the search fields for phase. It reports false when the phase has nothing to ask.
func fields(phase Phase, query models.Track) (services.SearchFields, bool) {
	f := services.SearchFields{}
	va := models.IsVariousArtists(query.Artist)
	if !va {
		f[services.FieldArtist] = query.Artist
	}

	switch phase {
	case PhaseNarrow:
		f[services.FieldFiles] = query.Title
		if query.Album != "" {
			f[services.FieldRelease] = query.Album
		}
	case PhaseWiden:
		if query.Album != "" {
			f[services.FieldRelease] = query.Album
		}
	case PhaseArtistOnly:
		if va {
			return nil, false
		}
	}
	return f, true
}

func (r *Resolver) runPhase(ctx context.Context, phase Phase, query models.Track, restrictAlbum bool) Outcome {
	f, ok := fields(phase, query)
	if !ok {
		return Outcome{Kind: Miss}
	}

	releases, err := r.catalog.Search(ctx, f)
	if err != nil {
		return Outcome{Kind: Failed, Err: err}
	}

	if phase == PhaseNarrow && len(releases) == 1 {
		r.logger.Info("hit on first try", "track", query.String())
		return r.single(query, releases[0])
	}
	if len(releases) > 0 {
		r.logger.Info("searching candidates", "track", query.String(), "phase", phase, "candidates", len(releases))
	}

	// ArtistOnly follows the caller; the album-bound phases always compare albums.
	restrict := true
	if phase == PhaseArtistOnly {
		restrict = restrictAlbum
	}
	return r.scan(ctx, query, releases, restrict)
}

func (r *Resolver) single(query models.Track, release models.Release) Outcome {
	if match, _, ok := r.matcher.MatchArtist(query.Artist, release.Artists()); ok {
		release.ArtistMatch = match
	} else {
		release.ArtistMatch = strings.ToLower(release.Artist)
	}

	a, ok := ChoosePreferred(release, r.prefs)
	if !ok {
		return Outcome{Kind: NoPreferred, Release: &release}
	}
	d := r.matcher.Release(query, release.ArtistMatch, release).Value()
	release.Narrow(a)
	return Outcome{Kind: Hit, Release: &release, Distance: d}
}

type candidate struct {
	release  models.Release
	distance float64
}

// scan checks releases best-first, file by file, and returns the first file that matches query.
func (r *Resolver) scan(ctx context.Context, query models.Track, releases []models.Release, restrict bool) Outcome {
	candidates := make([]candidate, 0, len(releases))
	for _, rel := range releases {
		match, _, ok := r.matcher.MatchArtist(query.Artist, rel.Artists())
		if !ok {
			continue
		}
		d := r.matcher.Release(query, match, rel).Value()
		if d > matching.ReleaseCandidate {
			r.logger.Debug("release too far", "release", rel.DisplayName(), "distance", d)
			continue
		}
		rel.ArtistMatch = match
		candidates = append(candidates, candidate{release: rel, distance: d})
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int { return cmp.Compare(a.distance, b.distance) })

	artistRe := artistPrefix(query.Artist)
	for _, c := range candidates {
		rel := c.release
		a, ok := ChoosePreferred(rel, r.prefs)
		if !ok {
			r.logger.Info("no artifact fits the format preferences", "release", rel.DisplayName())
			continue
		}

		r.logger.Info("considering release", "release", rel.DisplayName(), "artifact", a.ID, "title", query.Title)
		detail, err := r.catalog.ReleaseDetail(ctx, a.ID)
		if err != nil {
			return Outcome{Kind: Failed, Err: err}
		}

		for _, entry := range detail.Artifact.Files() {
			title, ok := normalizeFilename(entry, query, artistRe)
			if !ok {
				continue
			}
			cand, err := models.NewTrack(rel.ArtistMatch, title, models.WithAlbum(rel.DisplayName()))
			if err != nil {
				r.logger.Warn("could not build a track from file", "file", entry, "artifact", a.ID, "error", err)
				continue
			}

			d := r.matcher.Track(query, cand, restrict).Value()
			if d < matching.SameTrack {
				r.logger.Info("found artifact", "track", query.String(), "artifact", a.ID, "confidence", fmt.Sprintf("%.1f%%", (1-d)*100))
				rel.Narrow(a)
				return Outcome{Kind: Hit, Release: &rel, Distance: d}
			}
		}
	}
	return Outcome{Kind: Miss}
}
