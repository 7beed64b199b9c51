package export

import (
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// block is one paragraph of exported text
type block struct {
	heading bool
	text    string
}

var (
	blockPattern = regexp.MustCompile(`(?is)<(h[1-6])[^>]*>(.*?)</h[1-6]>|<(p|li|blockquote)[^>]*>(.*?)</(?:p|li|blockquote)>`)
	breakPattern = regexp.MustCompile(`(?i)<br\s*/?>`)
	spaces       = regexp.MustCompile(`[ \t\r\f\v]+`)
	strict       = bluemonday.StrictPolicy()
)

// plain strips markup and decodes entities
func plain(fragment string) string {
	fragment = breakPattern.ReplaceAllString(fragment, "\n")
	text := html.UnescapeString(strict.Sanitize(fragment))
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaces.ReplaceAllString(l, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// blocks splits document HTML into headings and paragraphs. Markup without
// block elements becomes paragraphs split on blank lines.
func blocks(body string) []block {
	var out []block
	for _, m := range blockPattern.FindAllStringSubmatch(body, -1) {
		if m[1] != "" {
			if t := plain(m[2]); t != "" {
				out = append(out, block{heading: true, text: t})
			}
			continue
		}
		if t := plain(m[4]); t != "" {
			out = append(out, block{text: t})
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, para := range strings.Split(plain(body), "\n\n") {
		if para = strings.TrimSpace(para); para != "" {
			out = append(out, block{text: para})
		}
	}
	return out
}

// TextRenderer writes UTF-8 plain text with upper-cased headings
type TextRenderer struct{}

func (TextRenderer) Render(_ context.Context, title, body string) ([]byte, error) {
	var b strings.Builder
	if title = strings.TrimSpace(title); title != "" {
		b.WriteString(strings.ToUpper(title))
		b.WriteString("\n\n")
	}
	for _, blk := range blocks(body) {
		if blk.heading {
			b.WriteString(strings.ToUpper(blk.text))
		} else {
			b.WriteString(blk.text)
		}
		b.WriteString("\n\n")
	}
	return []byte(strings.TrimRight(b.String(), "\n") + "\n"), nil
}
