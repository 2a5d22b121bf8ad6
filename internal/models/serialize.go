package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/desertthunder/redlist/internal/shared"
)

const (
	trackInfoPrefix = "TrackInfo("
	jsonPrefix      = "json="
)

// Serialize renders the compact textual form, TrackInfo(json='{...}').
func (t Track) Serialize() string {
	data, err := t.MarshalJSON()
	if err != nil {
		// Only strings and float64 are marshaled; neither can fail.
		panic(err)
	}
	return trackInfoPrefix + jsonPrefix + "'" + string(data) + "')"
}

// SerializeLegacy renders the older key/value form, TrackInfo(artist='..', title="..", length=1.5, id=None).
func (t Track) SerializeLegacy() string {
	parts := []string{
		keyArtist + "=" + pyQuote(t.Artist),
		keyTitle + "=" + pyQuote(t.Title),
	}
	if t.Album != "" {
		parts = append(parts, keyAlbum+"="+pyQuote(t.Album))
	}
	if t.Length > 0 {
		parts = append(parts, keyLength+"="+strconv.FormatFloat(t.Length, 'f', -1, 64))
	}
	if t.Feat != "" {
		parts = append(parts, keyFeat+"="+pyQuote(t.Feat))
	}
	for _, a := range t.Extra {
		if a.Value == nil {
			parts = append(parts, a.Key+"=None")
			continue
		}
		parts = append(parts, a.Key+"="+pyQuote(*a.Value))
	}
	return trackInfoPrefix + strings.Join(parts, ", ") + ")"
}

// ParseTrack reads any of the textual forms a track has been stored in:
// a bare JSON object, TrackInfo(json='...'), or the legacy TrackInfo(key=value, ...).
//
// A leading "#" is ignored so m3u comment lines can be passed directly.
func ParseTrack(s string) (Track, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "#"))

	if strings.HasPrefix(s, "{") {
		return decodeTrackJSON(s)
	}

	if !strings.HasPrefix(s, trackInfoPrefix) || !strings.HasSuffix(s, ")") {
		return Track{}, fmt.Errorf("%w: unrecognized track form %q", shared.ErrValidation, shared.Truncate(s, 64))
	}
	inner := s[len(trackInfoPrefix) : len(s)-1]

	if rest, ok := strings.CutPrefix(inner, jsonPrefix); ok {
		if len(rest) < 2 || (rest[0] != '\'' && rest[0] != '"') || rest[len(rest)-1] != rest[0] {
			return Track{}, fmt.Errorf("%w: unterminated json payload", shared.ErrValidation)
		}
		return decodeTrackJSON(rest[1 : len(rest)-1])
	}

	return parseLegacy(inner)
}

func decodeTrackJSON(s string) (Track, error) {
	var t Track
	if err := t.UnmarshalJSON([]byte(s)); err != nil {
		return Track{}, err
	}
	return t, nil
}

// parseLegacy reads comma separated key=value pairs where values are quoted strings, None, or bare numbers.
func parseLegacy(inner string) (Track, error) {
	var t Track
	sc := legacyScanner{src: inner}

	for {
		sc.skip(" ,\t")
		if sc.done() {
			break
		}

		key := sc.ident()
		if key == "" {
			return Track{}, fmt.Errorf("%w: expected key at offset %d", shared.ErrValidation, sc.pos)
		}
		sc.skip(" ")
		if !sc.consume('=') {
			return Track{}, fmt.Errorf("%w: expected '=' after %q", shared.ErrValidation, key)
		}
		sc.skip(" ")

		value, isNull, err := sc.value()
		if err != nil {
			return Track{}, err
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
				return Track{}, err
			}
		default:
			if isNull {
				t.setAttr(key, nil)
			} else {
				t.setAttr(key, Str(value))
			}
		}
	}

	if err := t.Validate(); err != nil {
		return Track{}, err
	}
	return t, nil
}

type legacyScanner struct {
	src string
	pos int
}

func (s *legacyScanner) done() bool { return s.pos >= len(s.src) }

func (s *legacyScanner) skip(chars string) {
	for !s.done() && strings.IndexByte(chars, s.src[s.pos]) >= 0 {
		s.pos++
	}
}

func (s *legacyScanner) consume(c byte) bool {
	if !s.done() && s.src[s.pos] == c {
		s.pos++
		return true
	}
	return false
}

func (s *legacyScanner) ident() string {
	start := s.pos
	for !s.done() {
		c := s.src[s.pos]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || (s.pos > start && c >= '0' && c <= '9') {
			s.pos++
			continue
		}
		break
	}
	return s.src[start:s.pos]
}

func (s *legacyScanner) value() (string, bool, error) {
	if s.done() {
		return "", false, fmt.Errorf("%w: missing value", shared.ErrValidation)
	}

	q := s.src[s.pos]
	if q != '\'' && q != '"' {
		start := s.pos
		for !s.done() && s.src[s.pos] != ',' {
			s.pos++
		}
		bare := strings.TrimSpace(s.src[start:s.pos])
		if bare == "None" {
			return "", true, nil
		}
		return bare, false, nil
	}

	s.pos++
	var b strings.Builder
	for !s.done() {
		c := s.src[s.pos]
		s.pos++
		switch {
		case c == q:
			return b.String(), false, nil
		case c == '\\' && !s.done():
			e := s.src[s.pos]
			s.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
	return "", false, fmt.Errorf("%w: unterminated string", shared.ErrValidation)
}

// pyQuote quotes s with single quotes, switching to double quotes when that avoids escaping.
func pyQuote(s string) string {
	q := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}

	var b strings.Builder
	b.WriteRune(q)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case q:
			b.WriteRune('\\')
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteRune(q)
	return b.String()
}
