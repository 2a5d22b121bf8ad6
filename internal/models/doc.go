// Package models defines the domain entities shared by the resolver, the catalog client and storage.
//
// Value types:
//   - [Track] : a song identity with ordered extension attributes and its textual forms
//   - [Release], [Artifact] : catalog groups and the torrents inside them
//   - [Playlist] : an ordered list of tracks from any source
//
// Persistent entities implement [Model]:
//   - [LibraryItem] : a file in the local library
//   - [ResolutionRecord] : the outcome of resolving one track in a batch
package models
