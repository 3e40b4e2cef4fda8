package content

import (
	"net/url"
	"regexp"
	"strings"
)

// InputType tells a Wikipedia URL apart from a free-text topic.
type InputType string

const (
	InputTopic InputType = "topic"
	InputURL   InputType = "url"
)

// Matches en.wikipedia.org, www., language variants like zh-min and mobile
// m. subdomains, with or without a scheme.
var wikipediaURL = regexp.MustCompile(`(?i)^(https?://)?(www\.)?([a-z]{2,3}(-[a-z]{2,3})?\.)?(m\.)?wikipedia\.org/wiki/\S+`)

// DetectInputType classifies user input.
func DetectInputType(input string) InputType {
	if wikipediaURL.MatchString(strings.TrimSpace(input)) {
		return InputURL
	}
	return InputTopic
}

// ExtractPageTitle returns the decoded page title of a Wikipedia article URL,
// with underscores turned into spaces.
func ExtractPageTitle(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.HasPrefix(strings.ToLower(rawURL), "http") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	title, ok := strings.CutPrefix(u.Path, "/wiki/")
	if !ok || title == "" {
		return "", false
	}
	return strings.ReplaceAll(title, "_", " "), true
}

var (
	// citation numbers, [edit], [citation needed] and similar markers
	bracketMarker = regexp.MustCompile(`\[[^\[\]]{0,40}\]`)
	whitespace    = regexp.MustCompile(`\s+`)
	sentence      = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

const (
	summarySentences = 3
	summaryMaxChars  = 300
)

// cleanText strips bracketed markers and collapses whitespace.
func cleanText(s string) string {
	s = bracketMarker.ReplaceAllString(s, "")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// limitWords keeps the first max words of s and reports the resulting count.
func limitWords(s string, max int) (string, int) {
	words := strings.Fields(s)
	if max > 0 && len(words) > max {
		words = words[:max]
	}
	return strings.Join(words, " "), len(words)
}

// summarize returns the first few sentences of s, capped in length.
func summarize(s string) string {
	var parts []string
	for _, m := range sentence.FindAllString(s, summarySentences) {
		if p := strings.TrimSpace(m); p != "" {
			parts = append(parts, p)
		}
	}
	summary := strings.Join(parts, " ")
	if summary == "" {
		summary, _ = limitWords(s, 50)
	}
	if r := []rune(summary); len(r) > summaryMaxChars {
		summary = string(r[:summaryMaxChars]) + "..."
	}
	return summary
}
