package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PhantomL4rd/mirapuri-stats/internal/aggregate"
	"github.com/PhantomL4rd/mirapuri-stats/internal/api/middleware"
	"github.com/PhantomL4rd/mirapuri-stats/internal/config"
	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
	"github.com/PhantomL4rd/mirapuri-stats/internal/publish"
	"github.com/PhantomL4rd/mirapuri-stats/internal/store"
)

// seedRawStore 写入一次已完成的爬取：
// 4 人 h1+b1，3 人 h2+b1，2 人 h3+b1（低于隐私下限）。
func seedRawStore(t *testing.T) *aggregate.Aggregator {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open("sqlite:" + filepath.Join(t.TempDir(), "raw.db"))
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	if err := store.MigrateRaw(db); err != nil {
		t.Fatalf("migrate raw: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(db) })

	raw := store.NewRawStore(db)
	if err := raw.UpsertItems(ctx, []model.ItemRecord{
		{ItemID: "h1", Name: "Head One", SlotID: model.SlotHead},
		{ItemID: "h2", Name: "Head Two", SlotID: model.SlotHead},
		{ItemID: "h3", Name: "Head Three", SlotID: model.SlotHead},
		{ItemID: "b1", Name: "Body One", SlotID: model.SlotBody},
	}); err != nil {
		t.Fatalf("items: %v", err)
	}

	next := 0
	for _, group := range []struct {
		head string
		n    int
	}{{"h1", 4}, {"h2", 3}, {"h3", 2}} {
		for i := 0; i < group.n; i++ {
			id := fmt.Sprintf("c%03d", next)
			next++
			if err := raw.SaveGlamour(ctx, []model.GlamourRecord{
				{CharacterID: id, SlotID: model.SlotHead, ItemID: group.head},
				{CharacterID: id, SlotID: model.SlotBody, ItemID: "b1"},
			}); err != nil {
				t.Fatalf("save: %v", err)
			}
		}
	}

	progress := store.NewProgressStore(db)
	if err := progress.Save(ctx, "test", &model.CrawlProgress{TotalKeys: 1, ExitReason: model.ExitCompleted}); err != nil {
		t.Fatalf("progress: %v", err)
	}
	return aggregate.New(db, progress, []string{"default-item"}, discardLogger())
}

// ============================================================================
// 聚合 → 发布客户端 → API
// ============================================================================

func TestPipeline_AggregatedRowsPassValidationAndCommit(t *testing.T) {
	s := newSQLiteServer(t, testConfig())
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	token, err := middleware.IssueToken(testSecret, "publisher", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	client := publish.NewClient(config.PublishConfig{BaseURL: ts.URL, Token: token, Timeout: 5 * time.Second}, discardLogger())
	client.WithSleep(func(ctx context.Context, d time.Duration) error { return nil })

	runner := publish.NewRunner(seedRawStore(t), client, nil, nil, discardLogger())
	report, err := runner.Run(context.Background(), publish.Options{})
	if err != nil {
		t.Fatalf("publish run: %v", err)
	}
	// usage: h1, h2, b1（h3 只有 2 人）；pairs: h1→b1, h2→b1, b1→h1, b1→h2
	if report.Items != 4 || report.Usage != 3 || report.Pairs != 4 {
		t.Fatalf("unexpected aggregation counts %+v", report)
	}

	active := decode[model.ActiveVersionResponse](t, do(t, s.Router(), http.MethodGet, "/sync/active", "", nil))
	if active.Version != report.Version {
		t.Fatalf("expected active version %s, got %s", report.Version, active.Version)
	}

	usage, pairs, err := s.store.(*store.PublishedStore).CountVersionRows(context.Background(), report.Version)
	if err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if usage != 3 || pairs != 4 {
		t.Fatalf("unexpected stored rows usage=%d pairs=%d", usage, pairs)
	}

	w := do(t, s.Router(), http.MethodGet, fmt.Sprintf("/pairs?base_slot=%d&base_item=b1", model.SlotBody), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get pairs: %d %s", w.Code, w.Body.String())
	}
	got := decode[struct {
		Version string              `json:"version"`
		Pairs   []model.PairPayload `json:"pairs"`
	}](t, w)
	want := []model.PairPayload{
		{BaseSlotID: model.SlotBody, PartnerSlotID: model.SlotHead, BaseItemID: "b1", PartnerItemID: "h1", Count: 4, Rank: 1},
		{BaseSlotID: model.SlotBody, PartnerSlotID: model.SlotHead, BaseItemID: "b1", PartnerItemID: "h2", Count: 3, Rank: 2},
	}
	if len(got.Pairs) != len(want) {
		t.Fatalf("expected %d pairs, got %+v", len(want), got.Pairs)
	}
	for i := range want {
		if got.Pairs[i] != want[i] {
			t.Fatalf("pair %d: got %+v, want %+v", i, got.Pairs[i], want[i])
		}
	}
	if strings.Contains(w.Body.String(), "h3") {
		t.Fatal("a combination below the privacy floor reached readers")
	}
}
