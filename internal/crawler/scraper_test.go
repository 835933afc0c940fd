package crawler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
)

type staticFetcher struct {
	body string
	err  error
	urls []string
}

func (f *staticFetcher) Get(ctx context.Context, url string) (*Response, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return &Response{StatusCode: http.StatusOK, Body: []byte(f.body)}, nil
}

type mockWriter struct {
	saveFunc   func(ctx context.Context, records []model.GlamourRecord) error
	records    []model.GlamourRecord
	items      []model.ItemRecord
	saveCalls  int
	itemsCalls int
}

func (m *mockWriter) SaveGlamour(ctx context.Context, records []model.GlamourRecord) error {
	m.saveCalls++
	if m.saveFunc != nil {
		if err := m.saveFunc(ctx, records); err != nil {
			return err
		}
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *mockWriter) UpsertItems(ctx context.Context, items []model.ItemRecord) error {
	m.itemsCalls++
	m.items = append(m.items, items...)
	return nil
}

func newTestScraper(f Fetcher, w GlamourWriter) *Scraper {
	return NewScraper(f, NewURLBuilder("http://upstream.test"), w, discardLogger())
}

func TestScraper_SavesArmorSlots(t *testing.T) {
	f := &staticFetcher{body: fullGlamourProfile("")}
	w := &mockWriter{}

	res := newTestScraper(f, w).Scrape(context.Background(), "777")
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}
	if res.Saved != 5 {
		t.Fatalf("expected 5 saved records, got %d", res.Saved)
	}
	if f.urls[0] != "http://upstream.test/lodestone/character/777/" {
		t.Fatalf("unexpected profile url %s", f.urls[0])
	}
	for _, r := range w.records {
		if r.CharacterID != "777" || !model.ValidSlot(r.SlotID) {
			t.Fatalf("unexpected record %+v", r)
		}
	}
	if len(w.items) != 5 || w.items[0].Name != "ハット" {
		t.Fatalf("unexpected catalog upsert %+v", w.items)
	}
}

func TestScraper_OptOutPersistsNothing(t *testing.T) {
	w := &mockWriter{}
	res := newTestScraper(&staticFetcher{body: fullGlamourProfile(OptOutMarker)}, w).Scrape(context.Background(), "1")
	if !res.OptedOut || res.Saved != 0 || len(res.Errors) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if w.saveCalls != 0 || w.itemsCalls != 0 {
		t.Fatalf("opted-out character must not be persisted (save=%d items=%d)", w.saveCalls, w.itemsCalls)
	}
}

func TestScraper_ErrorKinds(t *testing.T) {
	t.Run("http", func(t *testing.T) {
		f := &staticFetcher{err: &StatusError{Code: http.StatusNotFound}}
		res := newTestScraper(f, &mockWriter{}).Scrape(context.Background(), "1")
		if len(res.Errors) != 1 || res.Errors[0].Kind != ErrorKindHTTP {
			t.Fatalf("expected one http error, got %+v", res.Errors)
		}
	})

	t.Run("db", func(t *testing.T) {
		w := &mockWriter{saveFunc: func(ctx context.Context, records []model.GlamourRecord) error {
			return errors.New("duplicate entry")
		}}
		res := newTestScraper(&staticFetcher{body: fullGlamourProfile("")}, w).Scrape(context.Background(), "1")
		if res.Saved != 0 {
			t.Fatalf("expected nothing saved, got %d", res.Saved)
		}
		if len(res.Errors) != 1 || res.Errors[0].Kind != ErrorKindDB {
			t.Fatalf("expected one db error, got %+v", res.Errors)
		}
		if w.itemsCalls != 0 {
			t.Fatal("catalog must not be touched when raw rows fail")
		}
	})
}

func TestScraper_NoVisibleItems(t *testing.T) {
	w := &mockWriter{}
	res := newTestScraper(&staticFetcher{body: profileHTML("")}, w).Scrape(context.Background(), "1")
	if res.Saved != 0 || len(res.Errors) != 0 || res.OptedOut {
		t.Fatalf("unexpected result %+v", res)
	}
	if w.saveCalls != 0 {
		t.Fatal("nothing to save")
	}
}
