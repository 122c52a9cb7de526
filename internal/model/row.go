package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelmeta/hf-crawler/cfg"
	"github.com/modelmeta/hf-crawler/pkg/db"
	"github.com/modelmeta/hf-crawler/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModelRow is one flattened (model, commit) pair of the merged table,
// persisted to MySQL by the consumer process.
type ModelRow struct {
	Config *cfg.Config `gorm:"-" json:"-"`
	Logger log.Logger  `gorm:"-" json:"-"`
	Mysql  *db.Mysql   `gorm:"-" json:"-"`

	ID         uint      `json:"id" gorm:"primaryKey"`
	RepoURL    string    `json:"repo_url" gorm:"column:repo_url;type:varchar(512);not null;uniqueIndex:idx_repo_commit,length:255"`
	User       string    `json:"user" gorm:"column:user;type:varchar(255)"`
	ModelName  string    `json:"model_name" gorm:"column:model_name;type:varchar(255)"`
	Tags       string    `json:"tags" gorm:"column:tags;type:text"`
	Downloads  int       `json:"downloads" gorm:"column:downloads;default:0"`
	Likes      int       `json:"likes" gorm:"column:likes;default:0"`
	CommitID   string    `json:"commit_id" gorm:"column:commit_id;type:varchar(64);uniqueIndex:idx_repo_commit"`
	CommitURL  string    `json:"commit_url" gorm:"column:commit_url;type:varchar(512)"`
	Files      string    `json:"files" gorm:"column:files;type:text"`
	ReadmePath string    `json:"readme_path" gorm:"column:readme_path;type:varchar(512)"`
	CommitDate time.Time `json:"commit_date" gorm:"column:commit_date"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

func NewModelRow(config *cfg.Config, logger log.Logger, mysql *db.Mysql) (*ModelRow, error) {
	return &ModelRow{
		Config: config,
		Logger: logger,
		Mysql:  mysql,
	}, nil
}

func (r *ModelRow) TableName() string {
	return "model_commits"
}

// FlattenMeta explodes one scrape result into one row per commit.
func FlattenMeta(meta *ModelMeta) []ModelRow {
	tags, _ := json.Marshal(meta.Tags)

	rows := make([]ModelRow, 0, len(meta.CommitHistory))
	for _, commit := range meta.CommitHistory {
		files, _ := json.Marshal(commit.Files)
		date, _ := ParseCommitDate(commit.CommitDate)
		rows = append(rows, ModelRow{
			RepoURL:    meta.RepoURL,
			User:       TruncateString(meta.User, 250),
			ModelName:  TruncateString(meta.ModelName, 250),
			Tags:       string(tags),
			Downloads:  meta.Downloads,
			Likes:      meta.Likes,
			CommitID:   TruncateString(commit.CommitID, 60),
			CommitURL:  commit.CommitURL,
			Files:      string(files),
			ReadmePath: commit.ReadmePath,
			CommitDate: date,
		})
	}
	return rows
}

// ParseCommitDate parses the site's commit timestamps, which come in
// RFC3339 with or without fractional seconds.
func ParseCommitDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse commit date %q: %w", s, err)
	}
	return t, nil
}

// CreateBatch upserts a batch of flattened rows inside one transaction.
func (r *ModelRow) CreateBatch(rows []ModelRow) error {
	if len(rows) == 0 {
		return nil
	}

	db, err := r.Mysql.Db()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	now := time.Now()
	for i := range rows {
		rows[i].CreatedAt = now
		rows[i].UpdatedAt = now
	}

	return db.Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "repo_url"}, {Name: "commit_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user", "model_name", "tags", "downloads", "likes", "files", "readme_path", "commit_date", "updated_at"}),
		}).CreateInBatches(rows, 100)

		if result.Error != nil {
			return fmt.Errorf("failed to batch create model rows: %w", result.Error)
		}
		return nil
	})
}
