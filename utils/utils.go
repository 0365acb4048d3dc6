// Package utils provides utility functions.
package utils

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// RemoveFrontmatter removes the front matter header of a markdown file.
func RemoveFrontmatter(content []byte) []byte {
	if frontmatterBoundaries := detectFrontmatter(content); frontmatterBoundaries[0] == 0 {
		return content[frontmatterBoundaries[1]:]
	}
	return content
}

var yamlPattern = regexp.MustCompile(`(?m)^---\r?\n(\s*\r?\n)?`)

func detectFrontmatter(c []byte) []int {
	if matches := yamlPattern.FindAllIndex(c, 2); len(matches) > 1 {
		return []int{matches[0][0], matches[1][1]}
	}
	return []int{-1, -1}
}

// ExpandPath expands tilde and all environment variables from the given path.
func ExpandPath(path string) string {
	s, err := homedir.Expand(path)
	if err == nil {
		return os.ExpandEnv(s)
	}
	return os.ExpandEnv(path)
}

// IsMarkdownFile returns whether the filename has a markdown extension.
func IsMarkdownFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".md", ".mdown", ".mkdn", ".mkd", ".markdown":
		return true
	default:
		return false
	}
}

// IsTextFile returns whether the file is something narrate can read aloud.
func IsTextFile(filename string) bool {
	if IsMarkdownFile(filename) {
		return true
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".text":
		return true
	default:
		return false
	}
}

const (
	defaultName = "narration"
	maxNameLen  = 50
)

// SafeName turns a title into a file name stem: spaces become underscores,
// anything outside [A-Za-z0-9_-] is dropped and the result is capped at 50
// characters.
func SafeName(title string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case r == ' ':
			b.WriteByte('_')
		case r == '_' || r == '-',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9':
			b.WriteRune(r)
		}
		if b.Len() >= maxNameLen {
			break
		}
	}
	name := strings.Trim(b.String(), "_-")
	if name == "" {
		return defaultName
	}
	return name
}

// NameFromPath derives a name stem from a source file path.
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return SafeName(strings.TrimSuffix(base, filepath.Ext(base)))
}
