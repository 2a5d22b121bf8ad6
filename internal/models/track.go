package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/desertthunder/redlist/internal/shared"
)

// Attr is one extension attribute carried verbatim on a [Track].
//
// A nil Value is preserved and serializes as null (None in the legacy form).
type Attr struct {
	Key   string
	Value *string
}

// Str returns a pointer to s, for building [Attr] values.
func Str(s string) *string { return &s }

// Track is the identity of a single song: who, what, and optionally where from and how long.
//
// Artist and Title are never empty on a Track built through [NewTrack], [FromFields] or [ParseTrack].
type Track struct {
	Artist string
	Title  string
	Album  string
	Length float64 // seconds; zero when unknown
	Feat   string
	Extra  []Attr
}

const (
	keyArtist = "artist"
	keyTitle  = "title"
	keyAlbum  = "album"
	keyLength = "length"
	keyFeat   = "feat"
)

func reservedKey(k string) bool {
	switch k {
	case keyArtist, keyTitle, keyAlbum, keyLength, keyFeat:
		return true
	}
	return false
}

// TrackOption sets an optional field while building a [Track].
type TrackOption func(*Track) error

func WithAlbum(album string) TrackOption {
	return func(t *Track) error {
		t.Album = strings.TrimSpace(album)
		return nil
	}
}

func WithLength(seconds float64) TrackOption {
	return func(t *Track) error {
		if seconds < 0 {
			return fmt.Errorf("%w: negative length %v", shared.ErrValidation, seconds)
		}
		t.Length = seconds
		return nil
	}
}

// WithLengthMS sets the length from a millisecond duration, as reported by streaming services.
func WithLengthMS(ms int) TrackOption {
	return WithLength(float64(ms) / 1000)
}

// WithLengthString sets the length from "mm:ss", "h:mm:ss" or plain seconds.
func WithLengthString(s string) TrackOption {
	return func(t *Track) error {
		seconds, err := ParseLength(s)
		if err != nil {
			return err
		}
		t.Length = seconds
		return nil
	}
}

func WithFeat(feat string) TrackOption {
	return func(t *Track) error {
		t.Feat = strings.TrimSpace(feat)
		return nil
	}
}

// attrKeyRe is the key shape both serialized forms can carry.
var attrKeyRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkAttrKey(key string) error {
	if reservedKey(key) {
		return fmt.Errorf("%w: attribute key %q is reserved", shared.ErrValidation, key)
	}
	if !attrKeyRe.MatchString(key) {
		return fmt.Errorf("%w: attribute key %q must be an identifier", shared.ErrValidation, key)
	}
	return nil
}

// WithAttr appends an extension attribute, replacing an earlier value for the same key.
//
// Keys are identifiers ([A-Za-z_][A-Za-z0-9_]*) and may not shadow a fixed field.
func WithAttr(key string, value *string) TrackOption {
	return func(t *Track) error {
		if err := checkAttrKey(key); err != nil {
			return err
		}
		t.setAttr(key, value)
		return nil
	}
}

// NewTrack builds a validated [Track].
func NewTrack(artist, title string, opts ...TrackOption) (Track, error) {
	t := Track{Artist: strings.TrimSpace(artist), Title: strings.TrimSpace(title)}
	for _, opt := range opts {
		if err := opt(&t); err != nil {
			return Track{}, err
		}
	}
	if err := t.Validate(); err != nil {
		return Track{}, err
	}
	return t, nil
}

// FromFields builds a [Track] from positional fields: artist, title, album, length.
func FromFields(fields ...string) (Track, error) {
	if len(fields) < 2 {
		return Track{}, fmt.Errorf("%w: expected at least artist and title, got %d fields", shared.ErrValidation, len(fields))
	}
	if len(fields) > 4 {
		return Track{}, fmt.Errorf("%w: expected at most 4 fields, got %d", shared.ErrValidation, len(fields))
	}

	var opts []TrackOption
	if len(fields) > 2 {
		opts = append(opts, WithAlbum(fields[2]))
	}
	if len(fields) > 3 {
		opts = append(opts, WithLengthString(fields[3]))
	}
	return NewTrack(fields[0], fields[1], opts...)
}

// ParseLength converts "mm:ss", "h:mm:ss" or a decimal number of seconds into seconds.
func ParseLength(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if !strings.Contains(s, ":") {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: invalid length %q", shared.ErrValidation, s)
		}
		return v, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: invalid length %q", shared.ErrValidation, s)
	}

	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("%w: invalid length %q", shared.ErrValidation, s)
		}
		total = total*60 + v
	}
	return total, nil
}

// Validate checks that the required fields are present, that every attribute key is an identifier
// and that all text is valid UTF-8, so that both serialized forms parse back to an equal Track.
func (t Track) Validate() error {
	if strings.TrimSpace(t.Artist) == "" {
		return fmt.Errorf("%w: track artist is required", shared.ErrValidation)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: track title is required", shared.ErrValidation)
	}
	if t.Length < 0 {
		return fmt.Errorf("%w: negative length", shared.ErrValidation)
	}

	for _, f := range [...]struct{ name, value string }{
		{keyArtist, t.Artist}, {keyTitle, t.Title}, {keyAlbum, t.Album}, {keyFeat, t.Feat},
	} {
		if !utf8.ValidString(f.value) {
			return fmt.Errorf("%w: track %s is not valid UTF-8", shared.ErrValidation, f.name)
		}
	}
	for _, a := range t.Extra {
		if err := checkAttrKey(a.Key); err != nil {
			return err
		}
		if a.Value != nil && !utf8.ValidString(*a.Value) {
			return fmt.Errorf("%w: attribute %s is not valid UTF-8", shared.ErrValidation, a.Key)
		}
	}
	return nil
}

// Attr returns the extension attribute stored under key.
func (t Track) Attr(key string) (*string, bool) {
	for _, a := range t.Extra {
		if a.Key == key {
			return a.Value, true
		}
	}
	return nil, false
}

// AttrString returns the attribute value or "" when missing or null.
func (t Track) AttrString(key string) string {
	if v, ok := t.Attr(key); ok && v != nil {
		return *v
	}
	return ""
}

// With returns a copy of t carrying the extension attribute. The key is not checked; call
// [Track.Validate] before serializing a track built this way.
func (t Track) With(key string, value *string) Track {
	c := t.clone()
	c.setAttr(key, value)
	return c
}

func (t *Track) setAttr(key string, value *string) {
	for i := range t.Extra {
		if t.Extra[i].Key == key {
			t.Extra[i].Value = value
			return
		}
	}
	t.Extra = append(t.Extra, Attr{Key: key, Value: value})
}

func (t Track) clone() Track {
	c := t
	c.Extra = make([]Attr, len(t.Extra))
	for i, a := range t.Extra {
		c.Extra[i].Key = a.Key
		if a.Value != nil {
			c.Extra[i].Value = Str(*a.Value)
		}
	}
	if len(c.Extra) == 0 {
		c.Extra = nil
	}
	return c
}

// Equal reports whether both tracks carry the same fields and attributes in the same order.
func (t Track) Equal(o Track) bool {
	if t.Artist != o.Artist || t.Title != o.Title || t.Album != o.Album || t.Length != o.Length || t.Feat != o.Feat {
		return false
	}
	return slices.EqualFunc(t.Extra, o.Extra, func(a, b Attr) bool {
		if a.Key != b.Key || (a.Value == nil) != (b.Value == nil) {
			return false
		}
		return a.Value == nil || *a.Value == *b.Value
	})
}

// String renders the track the way it is shown in listings.
func (t Track) String() string {
	if t.Album == "" {
		return fmt.Sprintf("%s - %s", t.Artist, t.Title)
	}
	return fmt.Sprintf("%s - %s - %s", t.Artist, t.Album, t.Title)
}

// Key is a case-folded artist/title pair used for lookups.
func (t Track) Key() string {
	norm := func(s string) string { return strings.Join(strings.Fields(strings.ToLower(s)), " ") }
	return norm(t.Artist) + "|" + norm(t.Title)
}

var featRe = regexp.MustCompile(`(?i)^(.+?)[\s\-]+(?:featuring|feat\.?|ft\.?)\s+(.+)$`)

// CleanFeaturedArtist splits a compound artist credit into the primary artist and a featured artist.
//
// "A, B" becomes artist A featuring B, as does "A feat. B" or "A featuring B". The second return
// value reports whether anything changed; cleaning an already clean track is a no-op.
func (t Track) CleanFeaturedArtist() (Track, bool) {
	artist, feat := t.Artist, t.Feat

	if primary, rest, ok := strings.Cut(artist, ","); ok {
		artist = strings.TrimSpace(primary)
		if feat == "" {
			feat = strings.TrimSpace(rest)
		}
	}
	if m := featRe.FindStringSubmatch(artist); m != nil {
		artist, feat = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}

	if artist == "" || (artist == t.Artist && feat == t.Feat) {
		return t, false
	}

	c := t.clone()
	c.Artist, c.Feat = artist, feat
	return c, true
}

// MarshalJSON writes the fixed fields first and the extension attributes in insertion order.
func (t Track) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	field := func(key string, v any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false

		k, err := marshalPlain(key)
		if err != nil {
			return err
		}
		val, err := marshalPlain(v)
		if err != nil {
			return err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}

	if err := field(keyArtist, t.Artist); err != nil {
		return nil, err
	}
	if err := field(keyTitle, t.Title); err != nil {
		return nil, err
	}
	if t.Album != "" {
		if err := field(keyAlbum, t.Album); err != nil {
			return nil, err
		}
	}
	if t.Length > 0 {
		if err := field(keyLength, t.Length); err != nil {
			return nil, err
		}
	}
	if t.Feat != "" {
		if err := field(keyFeat, t.Feat); err != nil {
			return nil, err
		}
	}
	for _, a := range t.Extra {
		if err := field(a.Key, a.Value); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalPlain encodes v without escaping &, < and >, which are common in artist names.
func marshalPlain(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalJSON reads an object written by MarshalJSON, keeping unknown keys as ordered attributes.
func (t *Track) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: track must be a JSON object", shared.ErrValidation)
	}

	var out Track
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrValidation, err)
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrValidation, err)
		}
		if err := out.assign(key, raw); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	if err := out.Validate(); err != nil {
		return err
	}
	*t = out
	return nil
}

func (t *Track) assign(key string, raw json.RawMessage) error {
	value, isNull, err := rawScalar(raw)
	if err != nil {
		return fmt.Errorf("%w: field %q: %v", shared.ErrValidation, key, err)
	}

	switch key {
	case keyArtist:
		t.Artist = value
	case keyTitle:
		t.Title = value
	case keyAlbum:
		t.Album = value
	case keyFeat:
		t.Feat = value
	case keyLength:
		if t.Length, err = ParseLength(value); err != nil {
			return err
		}
	default:
		if isNull {
			t.setAttr(key, nil)
		} else {
			t.setAttr(key, Str(value))
		}
	}
	return nil
}

// rawScalar flattens a JSON scalar to text; strings are unquoted and numbers keep their literal.
func rawScalar(raw json.RawMessage) (string, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		return "", true, nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", false, err
		}
		return s, false, nil
	case len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '['):
		return "", false, fmt.Errorf("nested values are not supported")
	default:
		return string(trimmed), false, nil
	}
}
