// Package store owns everything the crawler writes to disk: the
// per-worker metadata CSVs, the README tree, and the merged table.
package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/modelmeta/hf-crawler/internal/model"
)

var metaHeader = []string{"repo_url", "user", "model_name", "tags", "commit_history", "downloads", "likes"}

// retryablePat recognizes degraded rows whose traversal died on a
// 4xx page, e.g. a rate limit. Those rows are dropped before dedup so
// the repository is traversed again on the next run.
var retryablePat = regexp.MustCompile(`\[4\d{2}\]`)

// MetaRecord is one persisted metadata row. Tags and CommitHistory
// hold the raw JSON cells; degraded rows carry a bare status code in
// ModelName or CommitHistory instead of scraped values.
type MetaRecord struct {
	RepoURL       string
	User          string
	ModelName     string
	Tags          string
	CommitHistory string
	Downloads     int
	Likes         int
}

// MetaStore is one worker's append-only CSV. The header is written
// once, with the first row, so partial progress survives a crash.
type MetaStore struct {
	Path string
}

func NewMetaStore(path string) *MetaStore {
	return &MetaStore{Path: path}
}

func (s *MetaStore) Exists() bool {
	info, err := os.Stat(s.Path)
	return err == nil && !info.IsDir()
}

// Append writes one traversal outcome immediately. Degraded results
// are stored with the status code standing in for the field the
// traversal never reached: the model name for a model-page failure,
// the commit history for anything later.
func (s *MetaStore) Append(res model.Result) error {
	record, err := recordFor(res)
	if err != nil {
		return err
	}

	writeHeader := !s.Exists()
	file, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if writeHeader {
		if err := writer.Write(metaHeader); err != nil {
			return fmt.Errorf("failed to write metadata header: %w", err)
		}
	}
	if err := writer.Write(record.fields()); err != nil {
		return fmt.Errorf("failed to write metadata row: %w", err)
	}
	writer.Flush()
	return writer.Error()
}

func recordFor(res model.Result) (MetaRecord, error) {
	record := MetaRecord{
		RepoURL:       res.RepoURL,
		Tags:          "[]",
		CommitHistory: "[]",
		Downloads:     res.Downloads,
		Likes:         res.Likes,
	}

	if !res.Ok() {
		if res.Stage == model.StageModelPage {
			record.ModelName = strconv.Itoa(res.Status)
		} else {
			record.CommitHistory = fmt.Sprintf("[%d]", res.Status)
		}
		return record, nil
	}

	tags, err := json.Marshal(res.Meta.Tags)
	if err != nil {
		return record, fmt.Errorf("failed to encode tags: %w", err)
	}
	history, err := json.Marshal(res.Meta.CommitHistory)
	if err != nil {
		return record, fmt.Errorf("failed to encode commit history: %w", err)
	}

	record.User = res.Meta.User
	record.ModelName = res.Meta.ModelName
	record.Tags = string(tags)
	record.CommitHistory = string(history)
	return record, nil
}

func (r MetaRecord) fields() []string {
	return []string{
		r.RepoURL,
		r.User,
		r.ModelName,
		r.Tags,
		r.CommitHistory,
		strconv.Itoa(r.Downloads),
		strconv.Itoa(r.Likes),
	}
}

// Load reads every row back. A missing file is not an error; it just
// yields no rows.
func (s *MetaStore) Load() ([]MetaRecord, error) {
	file, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file %s: %w", s.Path, err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	records := make([]MetaRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < len(metaHeader) {
			continue
		}
		downloads, _ := strconv.Atoi(row[5])
		likes, _ := strconv.Atoi(row[6])
		records = append(records, MetaRecord{
			RepoURL:       row[0],
			User:          row[1],
			ModelName:     row[2],
			Tags:          row[3],
			CommitHistory: row[4],
			Downloads:     downloads,
			Likes:         likes,
		})
	}
	return records, nil
}

// Rewrite replaces the file's contents with the given rows, used
// after the retry filter has dropped stale failures.
func (s *MetaStore) Rewrite(records []MetaRecord) error {
	file, err := os.Create(s.Path)
	if err != nil {
		return fmt.Errorf("failed to rewrite metadata file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(metaHeader); err != nil {
		return fmt.Errorf("failed to write metadata header: %w", err)
	}
	for _, record := range records {
		if err := writer.Write(record.fields()); err != nil {
			return fmt.Errorf("failed to write metadata row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// FilterRetryable splits persisted rows into the ones to keep and the
// count of dropped ones. A row is dropped when its user is empty and
// its commit history holds a 4xx marker: that traversal was blocked
// or rate limited and should be tried again.
func FilterRetryable(records []MetaRecord) ([]MetaRecord, int) {
	kept := make([]MetaRecord, 0, len(records))
	dropped := 0
	for _, record := range records {
		if record.User == "" && retryablePat.MatchString(record.CommitHistory) {
			dropped++
			continue
		}
		kept = append(kept, record)
	}
	return kept, dropped
}
