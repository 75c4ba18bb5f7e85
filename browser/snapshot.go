package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/mbultel/postule/classify"
)

// mdConverter renders page HTML to markdown for the classifier. Markdown
// keeps structure (headings, lists, links) that plain innerText loses,
// which is what the oracle keys on to tell a listing from a form.
var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// Snapshot captures the current page for classification: URL, title,
// markdown rendering, and visible text. Screenshot capture is left to
// the caller — it is only taken on failures.
func (r *Rod) Snapshot(ctx context.Context) (classify.Snapshot, error) {
	p := r.page.Context(ctx)

	info, err := p.Info()
	if err != nil {
		return classify.Snapshot{}, fmt.Errorf("browser: page info: %w", err)
	}

	res, err := p.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return classify.Snapshot{}, fmt.Errorf("browser: get DOM: %w", err)
	}
	html := res.Value.Str()

	text, err := r.VisibleText(ctx)
	if err != nil {
		return classify.Snapshot{}, err
	}

	md, err := mdConverter.ConvertString(html, converter.WithDomain(info.URL))
	if err != nil || strings.TrimSpace(md) == "" {
		// Markdown conversion is best effort; the text fallback keeps
		// the classifier fed.
		md = text
	}

	return classify.Snapshot{
		URL:         info.URL,
		Title:       info.Title,
		Markdown:    md,
		VisibleText: text,
	}, nil
}
