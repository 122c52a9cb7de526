package model

// Listing is one repository entry harvested from a catalog overview
// page. The raw subheader text is parsed later by the subheader
// package; the two flags record which count markers were present.
type Listing struct {
	URL          string `json:"url"`
	RawSubheader string `json:"raw_subheader"`
	HasDownloads bool   `json:"has_downloads"`
	HasLikes     bool   `json:"has_likes"`
}

// SegmentedLink is a Listing whose subheader has been resolved into
// absolute counts. Counts default to 0 when the marker was absent.
type SegmentedLink struct {
	URL       string
	Downloads int
	Likes     int
}

// CommitRecord describes a single commit of one repository.
// ReadmePath is empty when the commit tree held no README file.
type CommitRecord struct {
	CommitID   string   `json:"commit_id"`
	CommitURL  string   `json:"commit_url"`
	Files      []string `json:"files"`
	ReadmePath string   `json:"readme_path"`
	CommitDate string   `json:"commit_date"`
}

// ModelMeta is the full scrape result for one repository.
type ModelMeta struct {
	RepoURL       string         `json:"repo_url"`
	User          string         `json:"user"`
	ModelName     string         `json:"model_name"`
	Tags          []string       `json:"tags"`
	CommitHistory []CommitRecord `json:"commit_history"`
	Downloads     int            `json:"downloads"`
	Likes         int            `json:"likes"`
}
