package models

// Playlist is an ordered list of tracks read from a file or a streaming service.
type Playlist struct {
	ID     string
	Name   string
	Source string
	Tracks []Track
}

// Len returns the number of tracks.
func (p Playlist) Len() int { return len(p.Tracks) }
