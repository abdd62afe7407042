package ytdl

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const pageTitleTimeout = 30 * time.Second

// PageTitle fetches url and scrapes a display title from its markup. It is
// the fallback for entries the extractor resolves without metadata, so a bare
// link still gets a readable name in the queue.
func PageTitle(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pageTitleTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	title, _ := doc.Find(`meta[property="og:title"]`).Attr("content")
	if title == "" {
		title = doc.Find("title").First().Text()
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("no title found at %s", url)
	}
	return title, nil
}
