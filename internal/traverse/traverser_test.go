package traverse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/modelmeta/hf-crawler/cfg"
	"github.com/modelmeta/hf-crawler/internal/fetcher"
	"github.com/modelmeta/hf-crawler/internal/model"
	"github.com/modelmeta/hf-crawler/internal/store"
	"github.com/modelmeta/hf-crawler/pkg/log"
)

func testConfig(serverURL string) *cfg.Config {
	loader, _ := cfg.NewMockLoader()
	config, _ := loader.Load()
	config.Crawler.BaseUrl = serverURL
	config.Crawler.CatalogUrl = serverURL + "/models"
	config.Crawler.CourtesyDelayMs = 0
	config.Crawler.RequestsPerSecond = 1000
	config.Crawler.BurstLimit = 1000
	return config
}

func newTestTraverser(t *testing.T, serverURL string) *Traverser {
	t.Helper()
	config := testConfig(serverURL)
	logger, _ := log.NewCslLogger()
	pageFetcher, err := fetcher.NewFetcher(logger, config)
	if err != nil {
		t.Fatalf("NewFetcher failed: %v", err)
	}
	readmes := store.NewReadmeStore(t.TempDir())
	traverser, err := NewTraverser(logger, config, pageFetcher, readmes)
	if err != nil {
		t.Fatalf("NewTraverser failed: %v", err)
	}
	return traverser
}

func modelPage(user, name string, tags ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><body><header><div><h1>")
	fmt.Fprintf(&sb, `<div><a href="/%s">%s</a></div>`, user, user)
	if name != "" {
		fmt.Fprintf(&sb, `<div><a href="/%s/%s">%s</a></div>`, user, name, name)
	}
	sb.WriteString("</h1></div></header>")
	for _, tag := range tags {
		fmt.Fprintf(&sb, `<a class="tag">%s</a>`, tag)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

func treePage(commitCount int) string {
	return fmt.Sprintf(`<html><body><header><div>
		<a href="/commits/main"><span>History:</span><span>%d commits</span></a>
	</div></header></body></html>`, commitCount)
}

func commitEntry(id, date string) string {
	return fmt.Sprintf(`<div data-target="Commit" data-props='{"commit":{"commit":{"id":"%s"},"date":"%s"}}'></div>`, id, date)
}

func commitTreePage(readmeHref string, files ...string) string {
	var sb strings.Builder
	sb.WriteString(`<html><body><div data-target="ViewerIndexTreeList"><ul>`)
	for _, f := range files {
		fmt.Fprintf(&sb, `<li><div><a>%s</a></div></li>`, f)
	}
	if readmeHref != "" {
		fmt.Fprintf(&sb, `<li><a download href="%s"></a></li>`, readmeHref)
	}
	sb.WriteString(`</ul></div></body></html>`)
	return sb.String()
}

func TestTraverse_TwoCommitsOneReadme(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/org/model-a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, modelPage("org", "model-a", "pytorch", "bert"))
	})
	mux.HandleFunc("/org/model-a/tree/main", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("not-for-all-audiences") != "true" {
			t.Errorf("Tree page fetched without the sensitive-content flag")
		}
		fmt.Fprint(w, treePage(2))
	})
	mux.HandleFunc("/org/model-a/commits/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>")
		fmt.Fprint(w, commitEntry("aaa111", "2024-02-01T10:00:00.000Z"))
		fmt.Fprint(w, commitEntry("bbb222", "2024-01-01T09:00:00.000Z"))
		fmt.Fprint(w, "</body></html>")
	})
	mux.HandleFunc("/org/model-a/tree/aaa111", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, commitTreePage("/org/model-a/resolve/aaa111/README.md", "README.md", "config.json"))
	})
	mux.HandleFunc("/org/model-a/tree/bbb222", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, commitTreePage("", "config.json"))
	})
	mux.HandleFunc("/org/model-a/resolve/aaa111/README.md", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "# model-a")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	traverser := newTestTraverser(t, server.URL)
	link := model.SegmentedLink{URL: server.URL + "/org/model-a", Downloads: 1200, Likes: 340}
	result := traverser.Traverse(context.Background(), link)

	if !result.Ok() {
		t.Fatalf("Expected success, got status %d at stage %s", result.Status, result.Stage)
	}
	meta := result.Meta
	if meta.User != "org" || meta.ModelName != "model-a" {
		t.Errorf("Unexpected identity: user=%q model=%q", meta.User, meta.ModelName)
	}
	if len(meta.Tags) != 2 || meta.Tags[0] != "pytorch" {
		t.Errorf("Unexpected tags: %v", meta.Tags)
	}
	if meta.Downloads != 1200 || meta.Likes != 340 {
		t.Errorf("Counts not carried over: downloads=%d likes=%d", meta.Downloads, meta.Likes)
	}
	if len(meta.CommitHistory) != 2 {
		t.Fatalf("Expected 2 commits, got %d", len(meta.CommitHistory))
	}

	first, second := meta.CommitHistory[0], meta.CommitHistory[1]
	if first.CommitID != "aaa111" || first.CommitDate != "2024-02-01T10:00:00.000Z" {
		t.Errorf("Unexpected first commit: %+v", first)
	}
	if first.ReadmePath == "" {
		t.Error("Expected first commit's readme to be stored")
	} else {
		content, err := os.ReadFile(first.ReadmePath)
		if err != nil || string(content) != "# model-a" {
			t.Errorf("Stored readme wrong: content=%q err=%v", content, err)
		}
		if !strings.HasSuffix(first.ReadmePath, "aaa111_README.md") {
			t.Errorf("Unexpected readme file name: %s", first.ReadmePath)
		}
		if !strings.Contains(first.ReadmePath, "org__model-a") {
			t.Errorf("Expected readme under org__model-a, got %s", first.ReadmePath)
		}
	}
	if second.ReadmePath != "" {
		t.Errorf("Expected second commit without readme, got %s", second.ReadmePath)
	}
	if len(first.Files) != 2 || first.Files[0] != "README.md" {
		t.Errorf("Unexpected file listing: %v", first.Files)
	}
}

func TestTraverse_PaginatesCommitHistory(t *testing.T) {
	var pagesFetched int32
	mux := http.NewServeMux()
	mux.HandleFunc("/org/model-b", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, modelPage("org", "model-b"))
	})
	mux.HandleFunc("/org/model-b/tree/main", func(w http.ResponseWriter, r *http.Request) {
		// 120 commits means pages 0, 1 and 2 must all be fetched.
		fmt.Fprint(w, treePage(120))
	})
	mux.HandleFunc("/org/model-b/commits/main", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pagesFetched, 1)
		page := r.URL.Query().Get("p")
		fmt.Fprint(w, "<html><body>")
		fmt.Fprint(w, commitEntry("commit-p"+page, "2024-01-01T00:00:00.000Z"))
		fmt.Fprint(w, "</body></html>")
	})
	for _, id := range []string{"commit-p0", "commit-p1", "commit-p2"} {
		id := id
		mux.HandleFunc("/org/model-b/tree/"+id, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, commitTreePage("", "weights.bin"))
		})
	}
	server := httptest.NewServer(mux)
	defer server.Close()

	traverser := newTestTraverser(t, server.URL)
	result := traverser.Traverse(context.Background(), model.SegmentedLink{URL: server.URL + "/org/model-b"})

	if !result.Ok() {
		t.Fatalf("Expected success, got status %d at stage %s", result.Status, result.Stage)
	}
	if got := atomic.LoadInt32(&pagesFetched); got != 3 {
		t.Errorf("Expected 3 history pages fetched, got %d", got)
	}
	if len(result.Meta.CommitHistory) != 3 {
		t.Errorf("Expected 3 commits in page order, got %d", len(result.Meta.CommitHistory))
	}
	if result.Meta.CommitHistory[1].CommitID != "commit-p1" {
		t.Errorf("Page order not preserved: %+v", result.Meta.CommitHistory)
	}
}

func TestTraverse_ModelPageFailure(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	traverser := newTestTraverser(t, server.URL)
	link := model.SegmentedLink{URL: server.URL + "/gone/model", Downloads: 5, Likes: 7}
	result := traverser.Traverse(context.Background(), link)

	if result.Ok() {
		t.Fatal("Expected a degraded result")
	}
	if result.Status != http.StatusNotFound || result.Stage != model.StageModelPage {
		t.Errorf("Expected (404, model-page), got (%d, %s)", result.Status, result.Stage)
	}
	if result.Downloads != 5 || result.Likes != 7 {
		t.Errorf("Degraded result must keep the listing counts, got %d/%d", result.Downloads, result.Likes)
	}
	// The failing fetch must short-circuit everything downstream.
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("Expected exactly 1 request, got %d", got)
	}
}

func TestTraverse_TreePageFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/org/gated", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, modelPage("org", "gated"))
	})
	mux.HandleFunc("/org/gated/tree/main", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	traverser := newTestTraverser(t, server.URL)
	result := traverser.Traverse(context.Background(), model.SegmentedLink{URL: server.URL + "/org/gated"})

	if result.Ok() || result.Status != http.StatusUnauthorized || result.Stage != model.StageTreePage {
		t.Errorf("Expected (401, tree-page), got (%d, %s)", result.Status, result.Stage)
	}
}

func TestTraverse_CommitFailureDropsWholeRepository(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/org/model-c", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, modelPage("org", "model-c"))
	})
	mux.HandleFunc("/org/model-c/tree/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, treePage(2))
	})
	mux.HandleFunc("/org/model-c/commits/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>")
		fmt.Fprint(w, commitEntry("good111", "2024-02-01T10:00:00.000Z"))
		fmt.Fprint(w, commitEntry("limited2", "2024-01-01T09:00:00.000Z"))
		fmt.Fprint(w, "</body></html>")
	})
	mux.HandleFunc("/org/model-c/tree/good111", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, commitTreePage("", "config.json"))
	})
	mux.HandleFunc("/org/model-c/tree/limited2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	traverser := newTestTraverser(t, server.URL)
	result := traverser.Traverse(context.Background(), model.SegmentedLink{URL: server.URL + "/org/model-c"})

	if result.Ok() {
		t.Fatal("Expected a degraded result")
	}
	if result.Status != http.StatusTooManyRequests || result.Stage != model.StageCommitPage {
		t.Errorf("Expected (429, commit-page), got (%d, %s)", result.Status, result.Stage)
	}
	if result.Meta != nil {
		t.Error("A degraded result must not carry a partial commit list")
	}
}

func TestTraverse_NamelessRepositoryLayout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/solo", func(w http.ResponseWriter, r *http.Request) {
		// Single header slot: the name takes the user position and
		// the full header text carries the layout artifact.
		fmt.Fprint(w, `<html><body><header><div><h1>
			<div><a href="/solo">solo</a></div>
			<span>like</span>


			<span>follow</span>
		</h1></div></header></body></html>`)
	})
	mux.HandleFunc("/solo/tree/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, treePage(1))
	})
	mux.HandleFunc("/solo/commits/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, commitEntry("ccc333", "2024-03-01T00:00:00.000Z"))
	})
	mux.HandleFunc("/solo/tree/ccc333", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, commitTreePage("/solo/resolve/ccc333/README.md", "README.md"))
	})
	mux.HandleFunc("/solo/resolve/ccc333/README.md", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "solo readme")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	traverser := newTestTraverser(t, server.URL)
	result := traverser.Traverse(context.Background(), model.SegmentedLink{URL: server.URL + "/solo"})

	if !result.Ok() {
		t.Fatalf("Expected success, got status %d at stage %s", result.Status, result.Stage)
	}
	if result.Meta.ModelName != "solo" {
		t.Errorf("Expected model name to fall back to the user slot, got %q", result.Meta.ModelName)
	}
	if !strings.Contains(result.Meta.User, "solo") {
		t.Errorf("Expected full header text as user, got %q", result.Meta.User)
	}
	// The README dir must be the bare model name for this layout.
	path := result.Meta.CommitHistory[0].ReadmePath
	if strings.Contains(path, "__") {
		t.Errorf("Expected bare model-name readme dir, got %s", path)
	}
}

func TestReadmeDirName(t *testing.T) {
	if got := readmeDirName("org", "model"); got != "org__model" {
		t.Errorf("Expected org__model, got %q", got)
	}
	if got := readmeDirName("solo\n\n\nlike", "solo"); got != "solo" {
		t.Errorf("Expected bare model name for the nameless layout, got %q", got)
	}
}

func TestCountCommitPages(t *testing.T) {
	traverser := &Traverser{}
	cases := []struct {
		count int
		want  int
	}{
		{0, 0},
		{1, 0},
		{49, 0},
		{50, 1},
		{120, 2},
	}
	for _, c := range cases {
		if got := traverser.countCommitPages([]byte(treePage(c.count))); got != c.want {
			t.Errorf("countCommitPages(%d commits) = %d, want %d", c.count, got, c.want)
		}
	}

	// A page without the badge means no extra pages.
	if got := traverser.countCommitPages([]byte("<html><body></body></html>")); got != 0 {
		t.Errorf("Expected 0 pages without badge, got %d", got)
	}
}
