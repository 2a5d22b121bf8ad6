package models

import (
	"fmt"
	"html"
	"slices"
	"strings"
)

// VariousArtists lists placeholder credits that never identify a real artist.
var VariousArtists = []string{"", "various artists", "various", "va", "unknown"}

// IsVariousArtists reports whether name is a placeholder credit, ignoring case and surrounding space.
func IsVariousArtists(name string) bool {
	return slices.Contains(VariousArtists, strings.ToLower(strings.TrimSpace(name)))
}

// Credit is an artist credit attached to a release or artifact.
type Credit struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Artifact is one encoding of a release: a torrent in the catalog.
type Artifact struct {
	ID          int      `json:"torrentId"`
	EditionID   int      `json:"editionId,omitempty"`
	Format      string   `json:"format"`
	Encoding    string   `json:"encoding"`
	Media       string   `json:"media"`
	Size        int64    `json:"size"`
	FileCount   int      `json:"fileCount"`
	Snatches    int      `json:"snatches"`
	Seeders     int      `json:"seeders"`
	Leechers    int      `json:"leechers"`
	Scene       bool     `json:"scene,omitempty"`
	HasLog      bool     `json:"hasLog,omitempty"`
	Freeleech   bool     `json:"isFreeleech,omitempty"`
	CanUseToken bool     `json:"canUseToken,omitempty"`
	Artists     []Credit `json:"artists,omitempty"`
	FileList    string   `json:"fileList,omitempty"`
	FilePath    string   `json:"filePath,omitempty"`
}

// Descriptor is the "format encoding media" string that format preferences match against.
func (a Artifact) Descriptor() string {
	return strings.Join([]string{a.Format, a.Encoding, a.Media}, " ")
}

// Described reports whether the catalog filled in any of format, encoding or media.
func (a Artifact) Described() bool {
	return a.Format != "" || a.Encoding != "" || a.Media != ""
}

// Files splits the catalog's "name{{{size}}}|||name{{{size}}}" listing.
func (a Artifact) Files() []string {
	if a.FileList == "" {
		return nil
	}
	return strings.Split(a.FileList, "|||")
}

// Release is a torrent group: one creative work and every encoding of it.
type Release struct {
	ID          int                 `json:"groupId"`
	Name        string              `json:"groupName"`
	Artist      string              `json:"artist"`
	Year        int                 `json:"groupYear"`
	ReleaseType string              `json:"releaseType"`
	Tags        []string            `json:"tags,omitempty"`
	Artifacts   []Artifact          `json:"torrents"`
	MusicInfo   map[string][]Credit `json:"musicInfo,omitempty"`

	// ArtistMatch is the credited name that matched the query artist, set during resolution.
	ArtistMatch string `json:"-"`
}

// DisplayName is the group name with HTML entities decoded.
func (r Release) DisplayName() string {
	return html.UnescapeString(r.Name)
}

// Artists returns every credited artist name, lowercased, sorted and without placeholders.
//
// Names come from the group artist, each artifact's artists and every musicInfo role.
func (r Release) Artists() []string {
	seen := make(map[string]struct{})
	add := func(name string) {
		name = strings.ToLower(html.UnescapeString(strings.TrimSpace(name)))
		if IsVariousArtists(name) {
			return
		}
		seen[name] = struct{}{}
	}

	add(r.Artist)
	for _, a := range r.Artifacts {
		for _, c := range a.Artists {
			add(c.Name)
		}
	}
	for _, credits := range r.MusicInfo {
		for _, c := range credits {
			add(c.Name)
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Narrow replaces the artifact list with the single selected artifact.
func (r *Release) Narrow(a Artifact) {
	r.Artifacts = []Artifact{a}
}

// Selected returns the artifact kept by [Release.Narrow].
func (r Release) Selected() (Artifact, bool) {
	if len(r.Artifacts) != 1 {
		return Artifact{}, false
	}
	return r.Artifacts[0], true
}

func (r Release) String() string {
	if a, ok := r.Selected(); ok {
		return fmt.Sprintf("%s - %s [%s] (#%d)", r.Artist, r.DisplayName(), a.Descriptor(), a.ID)
	}
	return fmt.Sprintf("%s - %s", r.Artist, r.DisplayName())
}

// ReleaseDetail is the full view of one artifact together with its group.
type ReleaseDetail struct {
	Release  Release
	Artifact Artifact
}
