// Package extract finds links to known video hosts in chat text.
package extract

import (
	"fmt"
	"regexp"
)

// Pattern is a named video host URL shape.
type Pattern struct {
	Name string
	re   *regexp.Regexp
}

// String returns the pattern source.
func (p Pattern) String() string {
	return p.re.String()
}

// FindAll returns every match in s, left to right.
func (p Pattern) FindAll(s string) []string {
	return p.re.FindAllString(s, -1)
}

// Match reports whether s contains the pattern.
func (p Pattern) Match(s string) bool {
	return p.re.MatchString(s)
}

// ID segments accept any Unicode letter or digit; RE2 \w is ASCII only.
var defaultPatterns = []struct {
	name string
	expr string
}{
	{"youtube", `https?://(?:www\.)?youtube\.com/watch\?v=[\p{L}\p{N}_-]+`},
	{"youtu.be", `https?://youtu\.be/[\p{L}\p{N}_-]+`},
	{"vimeo", `https?://(?:www\.)?vimeo\.com/\d+`},
	{"dailymotion", `https?://(?:www\.)?dailymotion\.com/video/[\p{L}\p{N}_-]+`},
	{"twitch", `https?://(?:www\.)?twitch\.tv/videos/\d+`},
}

// Extractor holds registered URL patterns.
type Extractor struct {
	patterns []Pattern
}

// New creates an extractor with the built-in video host patterns.
func New() *Extractor {
	e := &Extractor{}
	for _, p := range defaultPatterns {
		e.patterns = append(e.patterns, Pattern{Name: p.name, re: regexp.MustCompile(p.expr)})
	}
	return e
}

// Register adds a pattern after the existing ones.
func (e *Extractor) Register(name, expr string) error {
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", expr, err)
	}
	e.patterns = append(e.patterns, Pattern{Name: name, re: re})
	return nil
}

// Extract returns every match of every pattern, pattern by pattern in
// registration order. A URL matched by two patterns is returned twice.
func (e *Extractor) Extract(text string) []string {
	var urls []string
	for _, p := range e.patterns {
		urls = append(urls, p.FindAll(text)...)
	}
	return urls
}

// Patterns returns all registered patterns.
func (e *Extractor) Patterns() []Pattern {
	return e.patterns
}
