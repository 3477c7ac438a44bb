package templating

import (
	"html/template"
	"strings"
	"sync"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var (
	policyOnce   sync.Once
	ugcPolicy    *bluemonday.Policy
	strictPolicy *bluemonday.Policy
)

func policies() (*bluemonday.Policy, *bluemonday.Policy) {
	policyOnce.Do(func() {
		ugcPolicy = bluemonday.UGCPolicy()
		strictPolicy = bluemonday.StrictPolicy()
	})
	return ugcPolicy, strictPolicy
}

// sanitize keeps the safe subset of HTML in raw, such as text formatting and
// links, and marks the result as trusted so it is not escaped again.
func sanitize(raw string) template.HTML {
	ugc, _ := policies()
	return template.HTML(ugc.Sanitize(raw))
}

// stripTags removes all markup from raw. The result is still escaped on output.
func stripTags(raw string) string {
	_, strict := policies()
	return strings.TrimSpace(strict.Sanitize(raw))
}

// renderMarkdown converts markdown to HTML and sanitizes it like sanitize.
func renderMarkdown(md string) template.HTML {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	// Parsers keep state between calls and cannot be shared.
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	out := markdown.ToHTML([]byte(md), p, r)
	ugc, _ := policies()
	return template.HTML(ugc.SanitizeBytes(out))
}
