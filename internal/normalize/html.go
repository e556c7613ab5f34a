package normalize

import (
	"regexp"
	"strings"
)

var htmlRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)<br\s*/?>`), "\n"},
	{regexp.MustCompile(`(?i)</p\s*>`), "\n\n"},
	{regexp.MustCompile(`(?i)<p(\s[^>]*)?>`), ""},
	{regexp.MustCompile(`(?i)<div(\s[^>]*)?>`), "\n"},
	{regexp.MustCompile(`(?i)</div\s*>`), ""},
	{regexp.MustCompile(`(?i)</?ul(\s[^>]*)?>`), "\n"},
	{regexp.MustCompile(`(?i)<li(\s[^>]*)?>`), "• "},
	{regexp.MustCompile(`(?i)</li\s*>`), "\n"},
	{regexp.MustCompile(`(?is)<(?:strong|b)(?:\s[^>]*)?>(.*?)</(?:strong|b)\s*>`), "**$1**"},
	{regexp.MustCompile(`(?is)<(?:em|i)(?:\s[^>]*)?>(.*?)</(?:em|i)\s*>`), "*$1*"},
	{regexp.MustCompile(`<[^>]*>`), ""},
}

var (
	htmlEntities = strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&apos;", "'",
	)

	spaceRun     = regexp.MustCompile(`[ \t\f\v\r]{2,}`)
	spaceAroundN = regexp.MustCompile(`[ \t]*\n[ \t]*`)
	blankLines   = regexp.MustCompile(`\n{3,}`)
)

// CleanHTML converts an HTML fragment to plain text. Line and list markup
// becomes newlines and bullets, bold and italic become ** and * markers,
// other tags are dropped and common entities decoded.
func CleanHTML(s string) string {
	for _, r := range htmlRules {
		s = r.re.ReplaceAllString(s, r.repl)
	}
	s = htmlEntities.Replace(s)
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = spaceRun.ReplaceAllString(s, " ")
	s = spaceAroundN.ReplaceAllString(s, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func looksLikeHTML(s string) bool {
	return strings.Contains(s, "<") && strings.Contains(s, ">")
}
