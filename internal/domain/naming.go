package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultTitleMaxLen caps sanitized titles, in runes.
	DefaultTitleMaxLen = 50
	// DefaultProfileTag is the suffix naming the fixed encode profile.
	DefaultProfileTag = "x220"
	// OutputTimeLayout renders MM-DD-YY_HH:MM.
	OutputTimeLayout = "01-02-06_15:04"

	fallbackTitle = "video"
)

// SanitizeTitle makes a title safe for use in a file name. Runs of runes
// other than letters, digits, '_', '-' and '.' collapse into a single '_',
// leading and trailing underscores are dropped and the result is cut to
// maxLen runes. An empty result becomes "video".
func SanitizeTitle(title string, maxLen int) string {
	title = norm.NFC.String(strings.TrimSpace(title))

	var b strings.Builder
	b.Grow(len(title))
	pending := false
	for _, r := range title {
		if allowedTitleRune(r) {
			if pending {
				b.WriteByte('_')
				pending = false
			}
			b.WriteRune(r)
			continue
		}
		pending = true
	}

	out := strings.Trim(b.String(), "_")
	if maxLen > 0 {
		if runes := []rune(out); len(runes) > maxLen {
			out = strings.TrimRight(string(runes[:maxLen]), "_")
		}
	}
	if out == "" {
		return fallbackTitle
	}
	return out
}

func allowedTitleRune(r rune) bool {
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r):
		return true
	case r == '_', r == '-', r == '.':
		return true
	}
	return false
}

// OutputFileName returns {title}-{MM-DD-YY_HH:MM}-{tag}.mp4. The title is
// expected to be sanitized already. Two jobs with the same title started in
// the same minute get the same name.
func OutputFileName(title string, startedAt time.Time, profileTag string) string {
	if profileTag == "" {
		profileTag = DefaultProfileTag
	}
	return fmt.Sprintf("%s-%s-%s.mp4", title, startedAt.Format(OutputTimeLayout), profileTag)
}
