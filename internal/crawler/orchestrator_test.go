package crawler

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/PhantomL4rd/mirapuri-stats/internal/config"
	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
)

type memProgress struct {
	data    map[string]*model.CrawlProgress
	saves   []model.CrawlProgress
	saveErr error
}

func newMemProgress() *memProgress {
	return &memProgress{data: make(map[string]*model.CrawlProgress)}
}

func (m *memProgress) Load(ctx context.Context, name string) (*model.CrawlProgress, error) {
	p, ok := m.data[name]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memProgress) Save(ctx context.Context, name string, p *model.CrawlProgress) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *p
	m.data[name] = &cp
	m.saves = append(m.saves, cp)
	return nil
}

// keyLister 每个检索键返回 perKey 个按部族命名的角色。
type keyLister struct {
	perKey  int
	visited []SearchKey
}

func (l *keyLister) FetchCharacterIDs(ctx context.Context, key SearchKey) ([]string, error) {
	l.visited = append(l.visited, key)
	ids := make([]string, 0, l.perKey)
	for i := 0; i < l.perKey; i++ {
		ids = append(ids, key.RaceTribeID+"-"+string(rune('a'+i)))
	}
	return ids, nil
}

type fakeScraper struct {
	results map[string]ScrapeResult
	scraped []string
}

func (s *fakeScraper) Scrape(ctx context.Context, id string) ScrapeResult {
	s.scraped = append(s.scraped, id)
	if r, ok := s.results[id]; ok {
		return r
	}
	return ScrapeResult{CharacterID: id, Saved: 1}
}

type setIndex map[string]bool

func (s setIndex) CharacterExists(ctx context.Context, id string) (bool, error) {
	return s[id], nil
}

func orchestratorConfig(limit int, tribes ...string) config.CrawlerConfig {
	return config.CrawlerConfig{
		Name:           "test",
		Seed:           42,
		Limit:          limit,
		Worlds:         []string{"Tonberry"},
		Jobs:           []int{19},
		Tribes:         tribes,
		GrandCompanies: []int{1},
	}
}

// ============================================================================
// 端到端场景
// ============================================================================

func TestOrchestrator_LimitScenario(t *testing.T) {
	tests := []struct {
		name          string
		limit         int
		wantKeys      int
		wantProcessed int
		wantExit      model.ExitReason
		wantLast      int
	}{
		{"limit_reached_after_first_key", 4, 1, 4, model.ExitLimitReached, 1},
		{"completed_with_high_limit", 100, 2, 6, model.ExitCompleted, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			progress := newMemProgress()
			// 上次运行在完成位置 0 后被打断，已处理 2 名角色
			progress.data["test"] = &model.CrawlProgress{
				SchemaVersion:              1,
				LastCompletedShuffledIndex: 0,
				TotalKeys:                  3,
				ProcessedCharacters:        2,
				Seed:                       42,
			}
			lister := &keyLister{perKey: 2}
			o := NewOrchestrator(orchestratorConfig(tt.limit, "tribe_1", "tribe_2", "tribe_3"), Deps{
				Lister:   lister,
				Scraper:  &fakeScraper{},
				Index:    setIndex{},
				Progress: progress,
			}, discardLogger())

			res, err := o.Run(context.Background(), RunOptions{})
			if err != nil {
				t.Fatalf("run: %v", err)
			}
			if res.ProcessedKeys != tt.wantKeys {
				t.Fatalf("processed keys = %d, want %d", res.ProcessedKeys, tt.wantKeys)
			}
			if res.ProcessedCharacters != tt.wantProcessed {
				t.Fatalf("processed characters = %d, want %d", res.ProcessedCharacters, tt.wantProcessed)
			}
			if res.ExitReason != tt.wantExit {
				t.Fatalf("exit reason = %s, want %s", res.ExitReason, tt.wantExit)
			}

			final := progress.data["test"]
			if final.ExitReason != tt.wantExit || final.LastCompletedShuffledIndex != tt.wantLast {
				t.Fatalf("unexpected final progress %+v", final)
			}
			if final.ProcessedCharacters != tt.wantProcessed || final.Seed != 42 || final.TotalKeys != 3 {
				t.Fatalf("unexpected final progress %+v", final)
			}
		})
	}
}

func TestOrchestrator_ResumeVisitsExactlyRemainingPositions(t *testing.T) {
	tribes := []string{"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9"}
	cfg := orchestratorConfig(1000, tribes...)
	progress := newMemProgress()
	progress.data["test"] = &model.CrawlProgress{LastCompletedShuffledIndex: 3, TotalKeys: 10, Seed: 42}
	lister := &keyLister{perKey: 1}

	o := NewOrchestrator(cfg, Deps{Lister: lister, Scraper: &fakeScraper{}, Index: setIndex{}, Progress: progress}, discardLogger())
	res, err := o.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := ShuffleKeys(o.Keys(), 42)[4:]
	if !reflect.DeepEqual(lister.visited, want) {
		t.Fatalf("visited %v, want %v", lister.visited, want)
	}
	if res.StartIndex != 4 || res.ExitReason != model.ExitCompleted {
		t.Fatalf("unexpected result %+v", res)
	}

	// 每个完成的键一次检查点，外加最终检查点
	if len(progress.saves) != len(want)+1 {
		t.Fatalf("expected %d checkpoints, got %d", len(want)+1, len(progress.saves))
	}
	for i, s := range progress.saves[:len(want)] {
		if s.LastCompletedShuffledIndex != 4+i || s.ExitReason != "" {
			t.Fatalf("checkpoint %d = %+v", i, s)
		}
	}
}

func TestOrchestrator_CompletedPriorStartsNewPass(t *testing.T) {
	progress := newMemProgress()
	progress.data["test"] = &model.CrawlProgress{LastCompletedShuffledIndex: 2, TotalKeys: 3, ProcessedCharacters: 9, Seed: 7, ExitReason: model.ExitCompleted}
	lister := &keyLister{perKey: 1}
	o := NewOrchestrator(orchestratorConfig(100, "a", "b", "c"), Deps{Lister: lister, Scraper: &fakeScraper{}, Index: setIndex{}, Progress: progress}, discardLogger())

	res, err := o.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.StartIndex != 0 || res.Seed != 42 || len(lister.visited) != 3 || res.ProcessedCharacters != 3 {
		t.Fatalf("expected a fresh pass with the configured seed, got %+v", res)
	}
}

func TestOrchestrator_SkipsExistingAndClassifies(t *testing.T) {
	scraper := &fakeScraper{results: map[string]ScrapeResult{
		"a-b": {Saved: 0},
		"a-c": {Errors: []ScrapeError{{Kind: ErrorKindHTTP, Err: errors.New("404")}}},
		"a-d": {OptedOut: true},
	}}
	o := NewOrchestrator(orchestratorConfig(100, "a"), Deps{
		Lister:   &keyLister{perKey: 5},
		Scraper:  scraper,
		Index:    setIndex{"a-e": true},
		Progress: newMemProgress(),
	}, discardLogger())

	res, err := o.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ProcessedCharacters != 1 || res.SkippedCharacters != 2 || res.ErroredCharacters != 1 ||
		res.ExistingCharacters != 1 || res.OptedOutCharacters != 1 {
		t.Fatalf("unexpected classification %+v", res)
	}
	for _, id := range scraper.scraped {
		if id == "a-e" {
			t.Fatal("existing character must not be scraped again")
		}
	}
}

func TestOrchestrator_LimitStopsMidKey(t *testing.T) {
	progress := newMemProgress()
	o := NewOrchestrator(orchestratorConfig(3, "a", "b"), Deps{
		Lister:   &keyLister{perKey: 5},
		Scraper:  &fakeScraper{},
		Index:    setIndex{},
		Progress: progress,
	}, discardLogger())

	res, err := o.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.ProcessedCharacters != 3 || res.ProcessedKeys != 0 || res.ExitReason != model.ExitLimitReached {
		t.Fatalf("unexpected result %+v", res)
	}
	// 中途停止的键不算完成
	if got := progress.data["test"].LastCompletedShuffledIndex; got != model.NoKeyCompleted {
		t.Fatalf("expected no completed key, got %d", got)
	}
}

func TestOrchestrator_CheckpointFailureIsFatal(t *testing.T) {
	progress := newMemProgress()
	progress.saveErr = errors.New("db down")
	o := NewOrchestrator(orchestratorConfig(100, "a", "b"), Deps{
		Lister:   &keyLister{perKey: 1},
		Scraper:  &fakeScraper{},
		Index:    setIndex{},
		Progress: progress,
	}, discardLogger())

	if _, err := o.Run(context.Background(), RunOptions{}); err == nil || !strings.Contains(err.Error(), "save progress") {
		t.Fatalf("expected checkpoint error, got %v", err)
	}
}

func TestOrchestrator_DryRun(t *testing.T) {
	lister := &keyLister{perKey: 1}
	progress := newMemProgress()
	o := NewOrchestrator(orchestratorConfig(100, "a", "b", "c"), Deps{
		Lister:   lister,
		Scraper:  &fakeScraper{},
		Index:    setIndex{},
		Progress: progress,
	}, discardLogger())

	var out bytes.Buffer
	res, err := o.Run(context.Background(), RunOptions{DryRun: true, Out: &out})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if res.TotalKeys != 3 || res.Seed != 42 {
		t.Fatalf("unexpected result %+v", res)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 keys, got %q", out.String())
	}
	if len(lister.visited) != 0 || len(progress.saves) != 0 {
		t.Fatal("dry run must not touch network or progress")
	}
}
