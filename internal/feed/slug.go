package feed

import (
	"strings"
	"unicode"
)

const slugSeparator = "--"

// Slugify lowercases text and collapses every run of non-alphanumeric
// characters into a single hyphen.
func Slugify(text string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// BuildPostParam renders the URL parameter for a post: the title slug
// followed by the identifier, joined so the identifier survives any
// slug content.
func BuildPostParam(title, id string) string {
	slug := Slugify(title)
	if slug == "" {
		return id
	}
	return slug + slugSeparator + id
}

// ParsePostParam recovers the identifier from a post URL parameter.
// Parameters without a slug segment are the identifier itself.
func ParsePostParam(param string) string {
	if i := strings.LastIndex(param, slugSeparator); i >= 0 {
		return param[i+len(slugSeparator):]
	}
	return param
}
