// Package catalog walks the model catalog's overview pages and
// harvests one Listing per repository card, following the "Next"
// pagination link until it disappears.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/modelmeta/hf-crawler/cfg"
	"github.com/modelmeta/hf-crawler/internal/fetcher"
	"github.com/modelmeta/hf-crawler/internal/model"
	"github.com/modelmeta/hf-crawler/pkg/log"
)

const (
	listingSelector       = "article.overview-card-wrapper > a"
	downloadsMarkSelector = "div > span:has(time[datetime]) ~ svg > path[fill]:only-child"
	likesMarkSelector     = "div > span:has(time[datetime]) ~ svg > path:only-child:not([fill])"
)

type Discovery struct {
	Logger  log.Logger
	Config  *cfg.Config
	Fetcher *fetcher.Fetcher
	LinkLog *LinkLog
}

func NewDiscovery(logger log.Logger, config *cfg.Config, f *fetcher.Fetcher, linkLog *LinkLog) (*Discovery, error) {
	return &Discovery{
		Logger:  logger,
		Config:  config,
		Fetcher: f,
		LinkLog: linkLog,
	}, nil
}

// Discover paginates the catalog starting at startURL and returns
// every harvested listing. Each page's listings are appended to the
// link log as soon as they are scraped, so a crash keeps the pages
// already walked. Running out of "Next" links is the normal end.
func (d *Discovery) Discover(ctx context.Context, startURL string) ([]model.Listing, error) {
	var all []model.Listing
	nextURL := startURL
	pages := 0

	for nextURL != "" {
		listings, next, err := d.scrapeIndexPage(ctx, nextURL)
		if err != nil {
			return all, err
		}
		all = append(all, listings...)
		pages++

		if d.LinkLog != nil {
			if err := d.LinkLog.Append(listings); err != nil {
				return all, err
			}
		}

		d.Logger.Info(ctx, "Scraped catalog page %d (%d links so far)", pages, len(all))
		nextURL = next
	}

	return all, nil
}

func (d *Discovery) scrapeIndexPage(ctx context.Context, pageURL string) ([]model.Listing, string, error) {
	status, body, err := d.Fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return nil, "", err
	}
	// A failed page means the walk is truncated and the link log is
	// partial; that has to reach the operator, not just the log.
	if status != http.StatusOK {
		return nil, "", fmt.Errorf("catalog page %s returned status %d", pageURL, status)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}

	var listings []model.Listing
	doc.Find(listingSelector).Each(func(i int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if !exists {
			return
		}

		listings = append(listings, model.Listing{
			URL:          d.Config.Crawler.BaseUrl + href,
			RawSubheader: sel.Find("div").First().Text(),
			HasDownloads: sel.Find(downloadsMarkSelector).Length() > 0,
			HasLikes:     sel.Find(likesMarkSelector).Length() > 0,
		})
	})

	nextURL := d.findNextLink(doc)
	if nextURL == "" {
		d.Logger.Notice(ctx, "No next page link on %s, discovery finished", pageURL)
	}

	return listings, nextURL, nil
}

// findNextLink locates the pagination anchor whose text is exactly
// "Next". An anchor without an href does not count.
func (d *Discovery) findNextLink(doc *goquery.Document) string {
	nextURL := ""
	doc.Find("a").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		href, exists := sel.Attr("href")
		if exists && href != "" && strings.TrimSpace(sel.Text()) == "Next" {
			nextURL = d.Config.Crawler.CatalogUrl + href
			return false
		}
		return true
	})
	return nextURL
}
