// package matching scores how alike two track identities are.
//
// A [Distance] collects named, weighted penalties in [0,1] and normalizes them into a single value
// in [0,1]. Zero means identical.
package matching

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/hbollon/go-edlib"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/desertthunder/redlist/internal/models"
)

// Component keys.
const (
	KeyTitle       = "track_title"
	KeyTrackArtist = "track_artist"
	KeyAlbum       = "album"
	KeyLength      = "track_length"
	KeyArtist      = "artist"
)

// DefaultWeights mirrors the weights taggers conventionally use for these components.
var DefaultWeights = map[string]float64{
	KeyTitle:       3.0,
	KeyTrackArtist: 2.0,
	KeyAlbum:       3.0,
	KeyLength:      2.0,
	KeyArtist:      3.0,
}

// Component is the list of penalties recorded under one key.
type Component struct {
	Key       string
	Weight    float64
	Penalties []float64
}

// Distance is a weighted aggregate of per-component penalties.
type Distance struct {
	weights    map[string]float64
	components []Component
}

// NewDistance creates an empty distance using weights; keys without a weight count as 1.
func NewDistance(weights map[string]float64) *Distance {
	return &Distance{weights: weights}
}

func (d *Distance) weight(key string) float64 {
	if w, ok := d.weights[key]; ok {
		return w
	}
	return 1.0
}

// Add records a raw penalty in [0,1] under key.
func (d *Distance) Add(key string, dist float64) {
	dist = math.Max(0, math.Min(1, dist))
	for i := range d.components {
		if d.components[i].Key == key {
			d.components[i].Penalties = append(d.components[i].Penalties, dist)
			return
		}
	}
	d.components = append(d.components, Component{Key: key, Weight: d.weight(key), Penalties: []float64{dist}})
}

// AddString records the string distance between a and b.
func (d *Distance) AddString(key, a, b string) {
	d.Add(key, StringDistance(a, b))
}

// AddRatio records n as a fraction of limit, clamped to [0,1].
func (d *Distance) AddRatio(key string, n, limit float64) {
	if limit <= 0 {
		d.Add(key, 0)
		return
	}
	d.Add(key, math.Max(0, math.Min(n, limit))/limit)
}

// Merge adds every penalty of o to d.
func (d *Distance) Merge(o *Distance) {
	if o == nil {
		return
	}
	for _, c := range o.components {
		for _, p := range c.Penalties {
			d.Add(c.Key, p)
		}
	}
}

// Raw is the weighted sum of all penalties.
func (d *Distance) Raw() float64 {
	var total float64
	for _, c := range d.components {
		for _, p := range c.Penalties {
			total += p * c.Weight
		}
	}
	return total
}

// Max is the largest raw value the recorded components could reach.
func (d *Distance) Max() float64 {
	var total float64
	for _, c := range d.components {
		total += float64(len(c.Penalties)) * c.Weight
	}
	return total
}

// Value is the normalized distance in [0,1]; an empty distance is 0.
func (d *Distance) Value() float64 {
	if d == nil {
		return 0
	}
	if m := d.Max(); m > 0 {
		return d.Raw() / m
	}
	return 0
}

// Compare orders distances by value.
func (d *Distance) Compare(o *Distance) int {
	a, b := d.Value(), o.Value()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (d *Distance) Less(o *Distance) bool { return d.Compare(o) < 0 }

// Components returns the recorded components in insertion order.
func (d *Distance) Components() []Component {
	out := make([]Component, len(d.components))
	copy(out, d.components)
	return out
}

func (d *Distance) String() string {
	parts := make([]string, 0, len(d.components))
	for _, c := range d.components {
		var sum float64
		for _, p := range c.Penalties {
			sum += p
		}
		parts = append(parts, fmt.Sprintf("%s=%.3f", c.Key, sum/float64(len(c.Penalties))))
	}
	return fmt.Sprintf("%.3f (%s)", d.Value(), strings.Join(parts, " "))
}

var (
	endWords    = []string{"the", "a", "an"}
	nonAlnumRe  = regexp.MustCompile(`[^\p{L}\p{N}]`)
	ampersandRe = regexp.MustCompile(`&`)
)

// Portions of a title that cost less than ordinary edits when they are the only difference.
var weightedPatterns = []struct {
	re     *regexp.Regexp
	weight float64
}{
	{regexp.MustCompile(`^the `), 0.1},
	{regexp.MustCompile(`[\[\(]?\b(ep|single)\b[\]\)]?`), 0.0},
	{regexp.MustCompile(`[\[\(]?(featuring|feat|ft)[\. :].+`), 0.1},
	{regexp.MustCompile(`\(.*?\)`), 0.3},
	{regexp.MustCompile(`\[.*?\]`), 0.3},
	{regexp.MustCompile(`(, )?(pt\.|part) .+`), 0.2},
}

// StringDistance compares two strings for tagging purposes and returns a value in [0,1].
//
// Case, diacritics, punctuation, a trailing ", the" and "&" versus "and" are ignored.
// Parenthesized suffixes, "feat." credits and part numbers only count at a reduced weight.
func StringDistance(a, b string) float64 {
	a, b = strings.ToLower(fold(a)), strings.ToLower(fold(b))

	for _, word := range endWords {
		suffix := ", " + word
		if strings.HasSuffix(a, suffix) {
			a = word + " " + strings.TrimSuffix(a, suffix)
		}
		if strings.HasSuffix(b, suffix) {
			b = word + " " + strings.TrimSuffix(b, suffix)
		}
	}

	a = ampersandRe.ReplaceAllString(a, "and")
	b = ampersandRe.ReplaceAllString(b, "and")

	base := basicDistance(a, b)
	var penalty float64
	for _, p := range weightedPatterns {
		caseA, caseB := p.re.ReplaceAllString(a, ""), p.re.ReplaceAllString(b, "")
		if caseA == a && caseB == b {
			continue
		}
		caseDist := basicDistance(caseA, caseB)
		delta := math.Max(0, base-caseDist)
		if delta == 0 {
			continue
		}
		a, b = caseA, caseB
		base = caseDist
		penalty += p.weight * delta
	}

	return math.Min(1, base+penalty)
}

func basicDistance(a, b string) float64 {
	a = nonAlnumRe.ReplaceAllString(strings.ToLower(a), "")
	b = nonAlnumRe.ReplaceAllString(strings.ToLower(b), "")
	if a == "" && b == "" {
		return 0
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	return float64(edlib.LevenshteinDistance(a, b)) / float64(longest)
}

// fold strips combining marks so "Sigur Rós" compares equal to "Sigur Ros".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// DuplicateSimilarity is the Jaro-Winkler similarity above which two library files are
// reported as likely copies of the same recording.
const DuplicateSimilarity = 0.95

// Duplicate pairs two indexes of a track slice that likely hold the same recording.
type Duplicate struct {
	First, Second int
	Similarity    float64
}

// FindDuplicates compares every pair of tracks by folded artist and title and returns the
// pairs whose Jaro-Winkler similarity is at least [DuplicateSimilarity], in index order.
func FindDuplicates(tracks []models.Track) []Duplicate {
	keys := make([]string, len(tracks))
	for i, t := range tracks {
		keys[i] = strings.ToLower(fold(t.Artist)) + " - " + strings.ToLower(fold(t.Title))
	}

	var dups []Duplicate
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			sim, err := edlib.StringsSimilarity(keys[i], keys[j], edlib.JaroWinkler)
			if err != nil {
				continue
			}
			if float64(sim) >= DuplicateSimilarity {
				dups = append(dups, Duplicate{First: i, Second: j, Similarity: float64(sim)})
			}
		}
	}
	return dups
}
