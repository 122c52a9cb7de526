package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/modelmeta/hf-crawler/internal/model"
)

var mergedHeader = []string{
	"repo_url", "user", "model_name", "tags", "downloads", "likes",
	"commit_id", "commit_url", "files", "readme_path", "commit_date",
}

// Merge concatenates every worker's metadata file and flattens the
// nested commit histories into one row per (model, commit), with the
// commit date normalized to a timestamp. Rows whose history is not a
// commit list (degraded rows) come out as a single row with empty
// commit columns. Returns the number of merged rows.
func Merge(workerPaths []string, mergedPath string) (int, error) {
	out, err := os.Create(mergedPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create merged table: %w", err)
	}
	defer out.Close()

	writer := csv.NewWriter(out)
	if err := writer.Write(mergedHeader); err != nil {
		return 0, fmt.Errorf("failed to write merged header: %w", err)
	}

	total := 0
	for _, path := range workerPaths {
		records, err := NewMetaStore(path).Load()
		if err != nil {
			return total, err
		}
		for _, record := range records {
			rows := flattenRecord(record)
			for _, row := range rows {
				if err := writer.Write(row); err != nil {
					return total, fmt.Errorf("failed to write merged row: %w", err)
				}
				total++
			}
		}
	}

	writer.Flush()
	return total, writer.Error()
}

func flattenRecord(record MetaRecord) [][]string {
	base := []string{
		record.RepoURL,
		record.User,
		record.ModelName,
		record.Tags,
		strconv.Itoa(record.Downloads),
		strconv.Itoa(record.Likes),
	}

	var commits []model.CommitRecord
	if err := json.Unmarshal([]byte(record.CommitHistory), &commits); err != nil || len(commits) == 0 {
		return [][]string{append(base, "", "", "", "", "")}
	}

	rows := make([][]string, 0, len(commits))
	for _, commit := range commits {
		files, _ := json.Marshal(commit.Files)
		rows = append(rows, append(append([]string{}, base...),
			commit.CommitID,
			commit.CommitURL,
			string(files),
			commit.ReadmePath,
			formatCommitDate(commit.CommitDate),
		))
	}
	return rows
}

func formatCommitDate(raw string) string {
	date, err := model.ParseCommitDate(raw)
	if err != nil || date.IsZero() {
		return ""
	}
	return date.UTC().Format(time.RFC3339)
}

// RowsFromRecords rebuilds flattened gorm rows from persisted worker
// records, for the optional database sink.
func RowsFromRecords(records []MetaRecord) []model.ModelRow {
	var rows []model.ModelRow
	for _, record := range records {
		var commits []model.CommitRecord
		if err := json.Unmarshal([]byte(record.CommitHistory), &commits); err != nil {
			continue
		}
		var tags []string
		_ = json.Unmarshal([]byte(record.Tags), &tags)

		rows = append(rows, model.FlattenMeta(&model.ModelMeta{
			RepoURL:       record.RepoURL,
			User:          record.User,
			ModelName:     record.ModelName,
			Tags:          tags,
			CommitHistory: commits,
			Downloads:     record.Downloads,
			Likes:         record.Likes,
		})...)
	}
	return rows
}

// WorkerPaths derives the per-worker metadata file names from the
// configured prefix, meta0.csv .. meta{n-1}.csv.
func WorkerPaths(dir, prefix string, workers int) []string {
	paths := make([]string, 0, workers)
	for i := 0; i < workers; i++ {
		paths = append(paths, filepath.Join(dir, fmt.Sprintf("%s%d.csv", prefix, i)))
	}
	return paths
}

// MetaFiles lists every per-worker metadata file already on disk,
// including leftovers from runs with a different worker count. The
// digit in the pattern keeps the merged table itself out of the set.
func MetaFiles(dir, prefix string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, prefix+"[0-9]*.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata files: %w", err)
	}
	return paths, nil
}
