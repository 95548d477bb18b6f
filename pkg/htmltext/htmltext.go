// Package htmltext derives readable plain text from the HTML problem statements
// served by the catalog.
package htmltext

import (
	"errors"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

var (
	// (?s) allows dot to match newlines
	// (?i) makes it case-insensitive
	reScript = regexp.MustCompile(`(?si)<script\b[^>]*>.*?</script>`)
	reStyle  = regexp.MustCompile(`(?si)<style\b[^>]*>.*?</style>`)

	reSpaces     = regexp.MustCompile(`[ \t\r\f\v]+`)
	reBlankLines = regexp.MustCompile(`\n{2,}`)

	pageURL, _ = url.Parse("https://leetcode.com/")
)

// Sanitize removes script and style blocks so they never leak into the text.
func Sanitize(content []byte) []byte {
	cleaned := reScript.ReplaceAll(content, []byte{})
	cleaned = reStyle.ReplaceAll(cleaned, []byte{})
	return cleaned
}

// FromHTML returns the plain text of an HTML fragment. Readability is tried
// first; when it finds nothing the raw text nodes are used instead.
func FromHTML(fragment string) (string, error) {
	cleaned := string(Sanitize([]byte(fragment)))
	if strings.TrimSpace(cleaned) == "" {
		return "", nil
	}
	doc := "<html><body><article>" + cleaned + "</article></body></html>"
	article, err := readability.FromReader(strings.NewReader(doc), pageURL)
	if err == nil {
		if text := normalize(article.TextContent); text != "" {
			return text, nil
		}
	}
	text, perr := PlainText(strings.NewReader(cleaned))
	if perr != nil {
		return "", errors.Join(err, perr)
	}
	return text, nil
}

var blockTags = map[string]bool{
	"p": true, "br": true, "div": true, "li": true, "pre": true,
	"ul": true, "ol": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"tr": true, "blockquote": true,
}

// PlainText concatenates the text nodes of r, breaking lines at block
// elements.
func PlainText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			return normalize(b.String()), nil
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			if blockTags[string(name)] {
				b.WriteByte('\n')
			}
		}
	}
}

func normalize(s string) string {
	s = reSpaces.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = reBlankLines.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

// Transform is an extract transform converting an HTML value to text. Empty
// results are treated as absent.
func Transform(v any) (any, error) {
	s, ok := v.(string)
	if !ok {
		return nil, errors.New("html content is not a string")
	}
	text, err := FromHTML(s)
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	return text, nil
}
