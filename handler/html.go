package handler

import (
	"bytes"
	"context"
	"net/url"
	"os"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/novakit/nova/errs"
)

// Pre-compiled regexes; runtime compilation of these invites ReDoS on
// hostile documents.
var (
	scriptRe         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	excessiveLinesRe = regexp.MustCompile(`\n{4,}`)
)

// HTMLHandler extracts the main content of an HTML document and
// converts it to markdown.
type HTMLHandler struct {
	converter *md.Converter
}

// NewHTMLHandler creates an HTML handler with GitHub-flavored
// markdown output.
func NewHTMLHandler() *HTMLHandler {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &HTMLHandler{converter: converter}
}

// Name implements Handler.
func (h *HTMLHandler) Name() string { return "html" }

// Version implements Handler.
func (h *HTMLHandler) Version() string { return "1.0" }

// Supports implements Handler.
func (h *HTMLHandler) Supports(path string) bool {
	return hasExt(path, ".html", ".htm")
}

// Convert implements Handler.
func (h *HTMLHandler) Convert(ctx context.Context, path string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindResource, "read html file", err)
	}

	title := extractHTMLTitle(data)
	cleaned := scriptRe.ReplaceAll(data, nil)
	cleaned = styleRe.ReplaceAll(cleaned, nil)

	// Readability isolates the main article body; fall back to the
	// whole document when it finds nothing usable.
	body := string(cleaned)
	pageURL := &url.URL{Scheme: "file", Path: path}
	if article, err := readability.FromReader(bytes.NewReader(cleaned), pageURL); err == nil && article.Content != "" {
		body = article.Content
		if title == "" {
			title = article.Title
		}
	}

	markdown, err := h.converter.ConvertString(body)
	if err != nil {
		return nil, errs.Wrap(errs.KindProcessing, "convert html to markdown", err)
	}
	markdown = strings.TrimSpace(excessiveLinesRe.ReplaceAllString(markdown, "\n\n\n"))

	fields := map[string]any{"format": "html"}
	if title != "" {
		fields["title"] = title
	}
	return &Result{Text: markdown, Fields: fields}, nil
}

// extractHTMLTitle returns the document's <title> text, if any.
func extractHTMLTitle(content []byte) string {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return ""
	}

	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil && title == ""; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}
