// ABOUTME: Default conversation naming and the first-turn auto-title rule
// ABOUTME: Pure functions, no storage access

package session

import (
	"fmt"
	"regexp"
	"strings"
)

// TitleMaxRunes bounds an auto-generated title, excluding the marker.
const TitleMaxRunes = 50

const truncationMarker = "..."

var defaultTitlePattern = regexp.MustCompile(`^Chat \d+$`)

// DefaultTitle is the placeholder name of a user's n-th conversation.
func DefaultTitle(n int) string {
	return fmt.Sprintf("Chat %d", n)
}

// IsDefaultTitle reports whether title is an untouched placeholder.
func IsDefaultTitle(title string) bool {
	return defaultTitlePattern.MatchString(title)
}

// AutoTitle returns the title a conversation should take after a turn is
// appended. It only fires for the first turn of a conversation that still
// has its placeholder name.
func AutoTitle(current string, turnCount int, userText string) (string, bool) {
	if turnCount != 1 || !IsDefaultTitle(current) {
		return "", false
	}

	runes := []rune(userText)
	if len(runes) <= TitleMaxRunes {
		title := strings.TrimSpace(userText)
		return title, title != ""
	}

	title := strings.TrimSpace(string(runes[:TitleMaxRunes])) + truncationMarker
	return title, true
}
