// Package traverse walks one repository: its model page, its commit
// tree, every commit-history page, and every single commit. Any
// non-200 response anywhere aborts the whole repository and yields a
// degraded result carrying the status code; no partial commit history
// is ever reported.
package traverse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/modelmeta/hf-crawler/cfg"
	"github.com/modelmeta/hf-crawler/internal/fetcher"
	"github.com/modelmeta/hf-crawler/internal/model"
	"github.com/modelmeta/hf-crawler/internal/store"
	"github.com/modelmeta/hf-crawler/pkg/log"
)

const (
	// The commit-history listing shows at most 50 commits per page.
	commitsPerPage = 50

	// statusTransport stands in for failures that never produced a
	// status code (timeouts, connection resets). It is 4xx-shaped on
	// purpose so the row is retried on the next run.
	statusTransport = 499

	userSelector        = "header > div > h1 > div:nth-of-type(1) > a"
	modelNameSelector   = "header > div > h1 > div:nth-of-type(2) > a"
	headerSelector      = "header > div > h1"
	tagSelector         = "a.tag"
	commitBadgeSelector = "header > div > a > span"
	commitSelector      = `div[data-target="Commit"]`
)

var leadingDigits = regexp.MustCompile(`^\d+`)

// commitProps mirrors the structured payload embedded in each commit
// entry of a history page.
type commitProps struct {
	Commit struct {
		Commit struct {
			ID string `json:"id"`
		} `json:"commit"`
		Date string `json:"date"`
	} `json:"commit"`
}

type Traverser struct {
	Logger  log.Logger
	Config  *cfg.Config
	Fetcher *fetcher.Fetcher
	Readmes *store.ReadmeStore
}

func NewTraverser(logger log.Logger, config *cfg.Config, f *fetcher.Fetcher, readmes *store.ReadmeStore) (*Traverser, error) {
	return &Traverser{
		Logger:  logger,
		Config:  config,
		Fetcher: f,
		Readmes: readmes,
	}, nil
}

// Traverse scrapes one repository end to end and returns either the
// full metadata or a degraded result naming the failed stage.
func (t *Traverser) Traverse(ctx context.Context, link model.SegmentedLink) model.Result {
	repoURL := link.URL

	status, body := t.fetch(ctx, repoURL)
	if status != http.StatusOK {
		t.Logger.Warn(ctx, "Model page for %s returned status %d, repository skipped", repoURL, status)
		return model.NewFailed(link, status, model.StageModelPage)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		t.Logger.Error(ctx, "Failed to parse model page %s: %v", repoURL, err)
		return model.NewFailed(link, statusTransport, model.StageModelPage)
	}

	user, modelName := t.extractHeader(ctx, doc, repoURL)
	readmeDir := readmeDirName(user, modelName)

	meta := &model.ModelMeta{
		RepoURL:   repoURL,
		User:      user,
		ModelName: modelName,
		Tags:      extractTags(doc),
		Downloads: link.Downloads,
		Likes:     link.Likes,
	}

	// Commit-tree page, fetched with the flag that unlocks
	// age-gated repositories for an authenticated session.
	status, body = t.fetch(ctx, repoURL+"/tree/main?not-for-all-audiences=true")
	if status != http.StatusOK {
		t.Logger.Warn(ctx, "Commit tree for %s returned status %d", repoURL, status)
		return model.NewFailed(link, status, model.StageTreePage)
	}

	commitPages := t.countCommitPages(body)

	var ids []string
	var dates []string
	for page := 0; page <= commitPages; page++ {
		status, body = t.fetch(ctx, fmt.Sprintf("%s/commits/main?p=%d", repoURL, page))
		if status != http.StatusOK {
			t.Logger.Warn(ctx, "Commit history page %d for %s returned status %d", page, repoURL, status)
			return model.NewFailed(link, status, model.StageHistoryPage)
		}

		pageIDs, pageDates, err := extractCommits(body)
		if err != nil {
			t.Logger.Error(ctx, "Failed to decode commit payloads on %s page %d: %v", repoURL, page, err)
			return model.NewFailed(link, statusTransport, model.StageHistoryPage)
		}
		ids = append(ids, pageIDs...)
		dates = append(dates, pageDates...)
	}

	history := make([]model.CommitRecord, 0, len(ids))
	for i, id := range ids {
		record, status := t.commitDetail(ctx, repoURL+"/tree/"+id, id, readmeDir)
		if status != 0 {
			t.Logger.Warn(ctx, "Commit %s of %s returned status %d, dropping repository", id, repoURL, status)
			return model.NewFailed(link, status, model.StageCommitPage)
		}
		record.CommitDate = dates[i]
		history = append(history, record)
	}
	meta.CommitHistory = history

	t.courtesyDelay()
	return model.NewOk(meta)
}

// fetch maps transport errors onto the sentinel status so callers
// only ever deal in status codes.
func (t *Traverser) fetch(ctx context.Context, pageURL string) (int, []byte) {
	status, body, err := t.Fetcher.Fetch(ctx, pageURL)
	if err != nil {
		t.Logger.Error(ctx, "Transport failure fetching %s: %v", pageURL, err)
		return statusTransport, nil
	}
	return status, body
}

// extractHeader pulls user and model name from the two fixed header
// positions. Some layouts omit the user link entirely; the name then
// moves into the first slot and the full header text becomes the
// user, triple-newline artifacts included.
func (t *Traverser) extractHeader(ctx context.Context, doc *goquery.Document, repoURL string) (string, string) {
	user := strings.TrimSpace(doc.Find(userSelector).First().Text())
	if user == "" {
		t.Logger.Warn(ctx, "Could not find user on %s, model name will be missing too", repoURL)
	}

	nameSel := doc.Find(modelNameSelector)
	if nameSel.Length() > 0 {
		return user, strings.TrimSpace(nameSel.First().Text())
	}

	modelName := user
	user = strings.TrimSpace(doc.Find(headerSelector).First().Text())
	return user, modelName
}

// readmeDirName picks the storage subdirectory for a model's README
// files. The triple-newline artifact marks the nameless layout, where
// user duplicates the header and only the model name is usable.
func readmeDirName(user, modelName string) string {
	if strings.Contains(user, "\n\n\n") {
		return modelName
	}
	return user + "__" + modelName
}

func extractTags(doc *goquery.Document) []string {
	var tags []string
	doc.Find(tagSelector).Each(func(i int, sel *goquery.Selection) {
		tags = append(tags, strings.TrimSpace(sel.Text()))
	})
	return tags
}

// countCommitPages reads the commit count badge off the tree page and
// derives how many extra history pages exist. A missing badge means
// no extra pages; page 0 is always fetched.
func (t *Traverser) countCommitPages(body []byte) int {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0
	}

	badge := doc.Find(commitBadgeSelector).Eq(1)
	if badge.Length() == 0 {
		return 0
	}
	digits := leadingDigits.FindString(strings.TrimSpace(badge.Text()))
	if digits == "" {
		return 0
	}
	count, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return count / commitsPerPage
}

// extractCommits decodes the structured payload of every commit entry
// on one history page, in rendered order.
func extractCommits(body []byte) ([]string, []string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}

	var ids, dates []string
	var decodeErr error
	doc.Find(commitSelector).EachWithBreak(func(i int, sel *goquery.Selection) bool {
		props, exists := sel.Attr("data-props")
		if !exists {
			return true
		}
		var payload commitProps
		if err := json.Unmarshal([]byte(props), &payload); err != nil {
			decodeErr = fmt.Errorf("failed to decode commit payload: %w", err)
			return false
		}
		ids = append(ids, payload.Commit.Commit.ID)
		dates = append(dates, payload.Commit.Date)
		return true
	})

	return ids, dates, decodeErr
}

func (t *Traverser) courtesyDelay() {
	time.Sleep(time.Duration(t.Config.Crawler.CourtesyDelayMs) * time.Millisecond)
}
