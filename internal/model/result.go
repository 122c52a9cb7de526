package model

// Stage names the traversal step at which a repository was abandoned.
type Stage int

const (
	StageNone Stage = iota
	StageModelPage
	StageTreePage
	StageHistoryPage
	StageCommitPage
)

func (s Stage) String() string {
	switch s {
	case StageModelPage:
		return "model-page"
	case StageTreePage:
		return "tree-page"
	case StageHistoryPage:
		return "history-page"
	case StageCommitPage:
		return "commit-page"
	default:
		return "none"
	}
}

// Result is the outcome of traversing one repository. Either Meta is
// populated (Status == 0), or Status carries the HTTP status code that
// aborted the traversal at Stage. Degraded results still identify the
// repository through RepoURL, and keep the listing's counts, so the
// persisted row can be recognized and retried on a later run.
type Result struct {
	RepoURL   string
	Meta      *ModelMeta
	Status    int
	Stage     Stage
	Downloads int
	Likes     int
}

func NewOk(meta *ModelMeta) Result {
	return Result{
		RepoURL:   meta.RepoURL,
		Meta:      meta,
		Downloads: meta.Downloads,
		Likes:     meta.Likes,
	}
}

func NewFailed(link SegmentedLink, status int, stage Stage) Result {
	return Result{
		RepoURL:   link.URL,
		Status:    status,
		Stage:     stage,
		Downloads: link.Downloads,
		Likes:     link.Likes,
	}
}

func (r Result) Ok() bool {
	return r.Status == 0 && r.Meta != nil
}
