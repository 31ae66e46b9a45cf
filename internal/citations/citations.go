// Package citations parses the inline [CITE: source | title | snippet]
// markers PRIME embeds in LLM output and exposes the structured Citation
// record used across the research pipeline.
package citations

import (
	"regexp"
	"strconv"
	"strings"
)

// Citation is one inline source reference.
type Citation struct {
	Index   int    `json:"index"`
	Source  string `json:"source"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Type    string `json:"citation_type"` // file | corpus | memory | goal | web
}

// Matches: [CITE: source | title | snippet]. Whitespace around pipes is
// tolerated; the snippet may contain spaces and punctuation.
var citePattern = regexp.MustCompile(`(?i)\[CITE:\s*([^|\]]+?)\s*\|\s*([^|\]]+?)\s*\|\s*([^\]]+?)\s*\]`)

// inferType classifies a citation by its source string prefix or path.
func inferType(source string) string {
	s := strings.ToLower(source)
	switch {
	case strings.HasPrefix(s, "goal:"):
		return "goal"
	case strings.HasPrefix(s, "memory:"):
		return "memory"
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return "web"
	case strings.Contains(s, "external_corpus"), strings.Contains(s, "textbook"):
		return "corpus"
	}
	return "file"
}

// Extract parses [CITE: ...] markers out of raw LLM response text.
// Each marker becomes a Citation with an auto-incremented index and is
// replaced in the returned text by a numbered reference [N].
func Extract(text string) (string, []Citation) {
	var cites []Citation
	index := 1
	clean := citePattern.ReplaceAllStringFunc(text, func(m string) string {
		groups := citePattern.FindStringSubmatch(m)
		cites = append(cites, Citation{
			Index:   index,
			Source:  strings.TrimSpace(groups[1]),
			Title:   strings.TrimSpace(groups[2]),
			Snippet: strings.TrimSpace(groups[3]),
			Type:    inferType(groups[1]),
		})
		ref := "[" + strconv.Itoa(index) + "]"
		index++
		return ref
	})
	return clean, cites
}

// Strip removes all [CITE: ...] markers from text without numbering.
func Strip(text string) string {
	return strings.TrimSpace(citePattern.ReplaceAllString(text, ""))
}
