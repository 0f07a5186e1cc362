package player

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"
)

// Metadata holds song information read from a file's tag.
type Metadata struct {
	Title  string
	Artist string
	Album  string
}

// Name returns "Artist - Title", or just the title when the artist is unknown.
func (m Metadata) Name() string {
	if m.Artist == "" {
		return m.Title
	}
	return m.Artist + " - " + m.Title
}

// ReadMetadata reads ID3v2 tags from an MP3 file, falling back to the filename.
func ReadMetadata(path string) Metadata {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fromName(path)
	}
	defer tag.Close()
	return fromTag(tag, path)
}

// ParseMetadata reads ID3v2 tags from in-memory MP3 data, falling back to name.
func ParseMetadata(data []byte, name string) Metadata {
	tag, err := id3v2.ParseReader(bytes.NewReader(data), id3v2.Options{Parse: true})
	if err != nil {
		return fromName(name)
	}
	return fromTag(tag, name)
}

func fromTag(tag *id3v2.Tag, name string) Metadata {
	m := Metadata{
		Title:  strings.TrimSpace(tag.Title()),
		Artist: strings.TrimSpace(tag.Artist()),
		Album:  strings.TrimSpace(tag.Album()),
	}
	if m.Title == "" {
		return fromName(name)
	}
	return m
}

func fromName(name string) Metadata {
	base := filepath.Base(name)
	return Metadata{Title: strings.TrimSuffix(base, filepath.Ext(base))}
}
