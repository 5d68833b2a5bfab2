package mime

import (
	"html"
	"regexp"
	"strings"

	"github.com/jaytaylor/html2text"
)

var imgTagRe = regexp.MustCompile(`(?is)<img\b[^>]*>`)

// HTMLToText renders an HTML body as plain text. Links keep their text but
// lose their targets and images are dropped.
func HTMLToText(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	cleaned := imgTagRe.ReplaceAllString(body, "")
	text, err := html2text.FromString(cleaned, html2text.Options{OmitLinks: true, TextOnly: true})
	if err != nil {
		return StripHTML(cleaned)
	}
	return strings.TrimSpace(text)
}

var (
	blockTagRe  = regexp.MustCompile(`(?i)<(/?)(p|div|br|hr|h[1-6]|li|tr|td|th|blockquote|pre|table|ul|ol)[^>]*>`)
	scriptTagRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTagRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	headTagRe   = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	anyTagRe    = regexp.MustCompile(`<[^>]*>`)
)

// StripHTML removes tags with regular expressions. Block elements become
// line breaks and entities are decoded. It is the fallback when the HTML
// cannot be parsed.
func StripHTML(rawHTML string) string {
	text := scriptTagRe.ReplaceAllString(rawHTML, "")
	text = styleTagRe.ReplaceAllString(text, "")
	text = headTagRe.ReplaceAllString(text, "")
	text = blockTagRe.ReplaceAllString(text, "\n")
	text = anyTagRe.ReplaceAllString(text, "")
	text = html.UnescapeString(text)

	text = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\u00a0", " ").Replace(text)

	lines := strings.Split(text, "\n")
	out := lines[:0]
	blank := 0
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
