package fetcher

import (
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxErrorPageBytes = 64 * 1024

// describeErrorPage pulls a short human-readable summary out of an HTML
// error response, preferring the page title over the first heading.
func describeErrorPage(resp *http.Response) string {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || (mediaType != "text/html" && mediaType != "application/xhtml+xml") {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxErrorPageBytes))
	if err != nil {
		return ""
	}

	for _, selector := range []string{"title", "h1"} {
		if text := cleanText(doc.Find(selector).First().Text()); text != "" {
			return truncate(text, 200)
		}
	}
	return ""
}

func cleanText(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
