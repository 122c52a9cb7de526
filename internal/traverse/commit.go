package traverse

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/modelmeta/hf-crawler/internal/model"
)

const (
	fileEntrySelector = `div[data-target="ViewerIndexTreeList"] > ul > li > div > a`
	fileLinkSelector  = `div[data-target="ViewerIndexTreeList"] > ul > li > a[download]`
)

// commitDetail scrapes one commit's tree page: the file listing and,
// when present, the downloadable README, which is stored under the
// model's subdirectory. A non-zero status means the caller must drop
// the whole repository.
func (t *Traverser) commitDetail(ctx context.Context, commitURL, commitID, readmeDir string) (model.CommitRecord, int) {
	record := model.CommitRecord{CommitID: commitID, CommitURL: commitURL}

	status, body := t.fetch(ctx, commitURL)
	if status != http.StatusOK {
		return record, status
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		t.Logger.Error(ctx, "Failed to parse commit page %s: %v", commitURL, err)
		return record, statusTransport
	}

	doc.Find(fileEntrySelector).Each(func(i int, sel *goquery.Selection) {
		record.Files = append(record.Files, strings.TrimSpace(sel.Text()))
	})

	readmeHref := findReadmeLink(doc)
	if readmeHref == "" {
		return record, 0
	}

	status, content := t.fetch(ctx, t.Config.Crawler.BaseUrl+readmeHref)
	if status != http.StatusOK {
		return record, status
	}

	path, err := t.Readmes.Save(readmeDir, commitID, content)
	if err != nil {
		t.Logger.Error(ctx, "Failed to store readme for commit %s: %v", commitID, err)
		return record, statusTransport
	}
	record.ReadmePath = path

	t.courtesyDelay()
	return record, 0
}

// findReadmeLink locates the download link whose target is readme.md,
// case-insensitively, among the commit tree's file links.
func findReadmeLink(doc *goquery.Document) string {
	href := ""
	doc.Find(fileLinkSelector).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		target, exists := sel.Attr("href")
		if exists && strings.Contains(strings.ToLower(target), "readme.md") {
			href = target
			return false
		}
		return true
	})
	return href
}
