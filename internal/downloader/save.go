package downloader

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var invalidFilenameChars = regexp.MustCompile(`[\\/:*?"<>|]`)

// IsURL returns true if the argument looks like a URL.
func IsURL(arg string) bool {
	return strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
}

// SanitizeFilename strips characters invalid in filenames and trims whitespace.
// Falls back to "download" if the result is empty.
func SanitizeFilename(name string) string {
	name = invalidFilenameChars.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "download"
	}
	return name
}

// DestPath maps a resolved download URL to a file under dir. The part of
// the URL path after "/music/" becomes the relative path, one sanitized
// directory per segment, and ".mp3" is added when there is no extension.
func DestPath(dir, rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if i := strings.Index(p, "/music/"); i >= 0 {
		p = p[i+len("/music/"):]
	}

	var parts []string
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		parts = append(parts, SanitizeFilename(seg))
	}
	if len(parts) == 0 {
		parts = []string{"download"}
	}

	name := parts[len(parts)-1]
	if path.Ext(name) == "" {
		parts[len(parts)-1] = name + ".mp3"
	}
	return filepath.Join(append([]string{dir}, parts...)...)
}
