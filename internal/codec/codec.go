// Package codec round-trips structured post metadata through the
// free-text body field of the remote discussion store. The encoded
// body carries a human-readable rendering followed by a
// machine-readable JSON block wrapped in a sentinel comment.
package codec

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/dailydrops/drops/internal/models"
)

const (
	metaOpen  = "<!-- dd-meta"
	metaClose = "-->"

	bodyOpen  = "<!-- dd-body -->"
	bodyClose = "<!-- /dd-body -->"
)

var (
	metaRe    = regexp.MustCompile(`(?s)<!--\s*dd-meta\s*\n(.*?)\n\s*-->`)
	bodyRe    = regexp.MustCompile(`(?s)<!-- dd-body -->\n?(.*?)\n?<!-- /dd-body -->`)
	mentionRe = regexp.MustCompile(`\[\[([A-Za-z0-9-]+)\]\]`)
)

// Decode extracts and parses the sentinel-delimited metadata block.
// The boolean is false when the sentinel is absent or the inner
// content fails to parse; such a body is "not one of ours" and is
// filtered out of results, never reported as an error.
func Decode(body string) (*models.PostMetadata, bool) {
	match := metaRe.FindStringSubmatch(body)
	if match == nil {
		return nil, false
	}
	var meta models.PostMetadata
	if err := json.Unmarshal([]byte(match[1]), &meta); err != nil {
		return nil, false
	}
	if meta.LocalID == "" {
		return nil, false
	}
	return &meta, true
}

// Encode composes the full body blob stored remotely: rendered
// human-readable text, then the metadata serialized as JSON inside the
// sentinel wrapper. displayNumber is a human-facing sequence hint for
// the attribution line; pass 0 when unknown.
func Encode(meta *models.PostMetadata, bodyText string, displayNumber int) (string, error) {
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize metadata: %w", err)
	}

	var b strings.Builder

	if meta.Title != "" {
		b.WriteString("# " + meta.Title + "\n\n")
	}

	b.WriteString(bodyOpen + "\n")
	b.WriteString(bodyText)
	b.WriteString("\n" + bodyClose + "\n")

	for _, asset := range meta.Assets {
		if asset.PendingCDN || asset.URL == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("\n![%s](%s)\n", asset.ID, asset.URL))
	}

	writeSection(&b, "Collaborators", meta.Collaborators)
	writeSection(&b, "Tags", meta.Tags)
	if meta.Team != "" {
		writeSection(&b, "Team", []string{meta.Team})
	}
	if meta.Project != "" {
		writeSection(&b, "Project", []string{meta.Project})
	}
	writeSection(&b, "Links", meta.URLs)

	b.WriteString("\n" + attribution(meta.Authors, displayNumber) + "\n")

	b.WriteString("\n" + metaOpen + "\n")
	b.Write(payload)
	b.WriteString("\n" + metaClose)

	return b.String(), nil
}

// ExtractDisplayText recovers the user-authored body from an encoded
// blob. It prefers the marker-delimited segment; bodies produced by an
// earlier scheme without markers fall back to everything except the
// metadata block.
func ExtractDisplayText(body string) string {
	if match := bodyRe.FindStringSubmatch(body); match != nil {
		return strings.TrimSpace(match[1])
	}
	return strings.TrimSpace(metaRe.ReplaceAllString(body, ""))
}

// RewriteMentions turns [[Name]] tokens into normalized profile links.
// Applied to user-authored body text only, never to the metadata block.
func RewriteMentions(text string) string {
	return mentionRe.ReplaceAllString(text, "[@$1](https://github.com/$1)")
}

func writeSection(b *strings.Builder, label string, values []string) {
	if len(values) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("\n**%s:** %s\n", label, strings.Join(values, ", ")))
}

func attribution(authors []string, displayNumber int) string {
	line := "_Shared via drops_"
	if len(authors) > 0 {
		line = fmt.Sprintf("_Shared by %s via drops_", strings.Join(authors, ", "))
	}
	if displayNumber > 0 {
		line += fmt.Sprintf(" _(#%d)_", displayNumber)
	}
	return line
}
