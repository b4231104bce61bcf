// Package content renders post markdown into sanitized HTML and derives the
// plain-text summaries used by teasers.
package content

import (
	"bytes"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/itchan-dev/itforum/shared/domain"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	goldmark_html "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// postLinkRegex matches escaped reply references: &gt;&gt;pid
var postLinkRegex = regexp.MustCompile(`&gt;&gt;(\d+)`)

var whitespaceRegex = regexp.MustCompile(`\s+`)

type Renderer struct {
	md     goldmark.Markdown
	ugc    *bluemonday.Policy
	strict *bluemonday.Policy
}

func New() *Renderer {
	p := parser.NewParser(
		parser.WithBlockParsers(blockParsers()...),
		parser.WithInlineParsers(parser.DefaultInlineParsers()...),
		parser.WithParagraphTransformers(parser.DefaultParagraphTransformers()...),
	)
	md := goldmark.New(
		goldmark.WithParser(p),
		goldmark.WithExtensions(extension.Strikethrough, extension.Linkify),
		goldmark.WithRendererOptions(goldmark_html.WithHardWraps()),
	)

	ugc := bluemonday.UGCPolicy()
	ugc.AllowAttrs("class").Matching(regexp.MustCompile("^post-link$")).OnElements("a")
	ugc.AllowAttrs("data-pid").Matching(regexp.MustCompile(`^\d+$`)).OnElements("a")
	ugc.AllowRelativeURLs(true)

	return &Renderer{md: md, ugc: ugc, strict: bluemonday.StrictPolicy()}
}

// blockParsers drops the blockquote parser so ">>pid" stays inline text.
func blockParsers() []util.PrioritizedValue {
	var out []util.PrioritizedValue
	for _, v := range parser.DefaultBlockParsers() {
		if bytes.IndexByte(v.Value.(parser.BlockParser).Trigger(), '>') >= 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

func (r *Renderer) markdown(text string) string {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		// plain text still renders safely after sanitizing
		return html.EscapeString(text)
	}
	return strings.TrimSpace(buf.String())
}

// Render returns the sanitized HTML of a post and the post ids it references
// with >>pid, each once, in order of appearance.
func (r *Renderer) Render(text domain.PostText) (string, []domain.PostId) {
	var refs []domain.PostId
	seen := make(map[domain.PostId]struct{})

	linked := postLinkRegex.ReplaceAllStringFunc(r.markdown(text), func(match string) string {
		pid, err := strconv.ParseInt(postLinkRegex.FindStringSubmatch(match)[1], 10, 64)
		if err != nil {
			return match
		}
		if _, ok := seen[pid]; !ok {
			seen[pid] = struct{}{}
			refs = append(refs, pid)
		}
		id := strconv.FormatInt(pid, 10)
		return `<a class="post-link" data-pid="` + id + `" href="#post-` + id + `">&gt;&gt;` + id + `</a>`
	})
	return r.ugc.Sanitize(linked), refs
}

// Summary strips all markup and truncates to maxRunes, appending "..." when
// something was cut.
func (r *Renderer) Summary(text domain.PostText, maxRunes int) string {
	plain := html.UnescapeString(r.strict.Sanitize(r.markdown(text)))
	plain = strings.TrimSpace(whitespaceRegex.ReplaceAllString(plain, " "))
	if maxRunes <= 0 || utf8.RuneCountInString(plain) <= maxRunes {
		return plain
	}
	runes := []rune(plain)
	return string(runes[:maxRunes]) + "..."
}
