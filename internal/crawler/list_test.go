package crawler

import (
	"context"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"testing"
)

// pageFetcher 按 page 参数返回预设页面，并记录请求过的页码。
type pageFetcher struct {
	pages     map[int]string
	failPages map[int]int
	requested []int
}

func (f *pageFetcher) Get(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	page := 1
	if p := u.Query().Get("page"); p != "" {
		page, _ = strconv.Atoi(p)
	}
	f.requested = append(f.requested, page)
	if code, ok := f.failPages[page]; ok {
		return nil, &StatusError{Code: code, URL: rawURL}
	}
	body, ok := f.pages[page]
	if !ok {
		return nil, &StatusError{Code: http.StatusNotFound, URL: rawURL}
	}
	return &Response{StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

var listKey = SearchKey{World: "Tonberry", ClassJobID: 19, RaceTribeID: "tribe_1", GrandCompanyID: 1}

func newTestListFetcher(f Fetcher, maxPages int) *ListFetcher {
	return NewListFetcher(f, NewURLBuilder("http://upstream.test"), 100, maxPages, discardLogger())
}

func TestListFetcher_StopsAtFirstEntryBelowThreshold(t *testing.T) {
	f := &pageFetcher{pages: map[int]string{
		1: searchPageHTML(true, SearchEntry{"1", 100}, SearchEntry{"2", 100}),
		2: searchPageHTML(true, SearchEntry{"3", 100}, SearchEntry{"4", 99}, SearchEntry{"5", 100}),
		3: searchPageHTML(false, SearchEntry{"6", 100}),
	}}

	ids, err := newTestListFetcher(f, 0).FetchCharacterIDs(context.Background(), listKey)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if want := []string{"1", "2", "3"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	if want := []int{1, 2}; !reflect.DeepEqual(f.requested, want) {
		t.Fatalf("requested pages = %v, want %v", f.requested, want)
	}
}

func TestListFetcher_StopsWithoutNextPage(t *testing.T) {
	f := &pageFetcher{pages: map[int]string{
		1: searchPageHTML(true, SearchEntry{"1", 100}),
		2: searchPageHTML(false, SearchEntry{"2", 100}),
	}}
	ids, err := newTestListFetcher(f, 0).FetchCharacterIDs(context.Background(), listKey)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if want := []string{"1", "2"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestListFetcher_FailureKeepsAccumulatedIDs(t *testing.T) {
	f := &pageFetcher{
		pages:     map[int]string{1: searchPageHTML(true, SearchEntry{"1", 100})},
		failPages: map[int]int{2: http.StatusServiceUnavailable},
	}
	ids, err := newTestListFetcher(f, 0).FetchCharacterIDs(context.Background(), listKey)
	if err == nil {
		t.Fatal("expected error from failed page")
	}
	if want := []string{"1"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
}

func TestListFetcher_FailureOnFirstPage(t *testing.T) {
	f := &pageFetcher{failPages: map[int]int{1: http.StatusNotFound}}
	ids, err := newTestListFetcher(f, 0).FetchCharacterIDs(context.Background(), listKey)
	if err == nil || StatusCodeOf(err) != http.StatusNotFound {
		t.Fatalf("expected 404 error, got %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no ids, got %v", ids)
	}
}

func TestListFetcher_MaxPages(t *testing.T) {
	f := &pageFetcher{pages: map[int]string{
		1: searchPageHTML(true, SearchEntry{"1", 100}),
		2: searchPageHTML(true, SearchEntry{"2", 100}),
		3: searchPageHTML(true, SearchEntry{"3", 100}),
	}}
	ids, err := newTestListFetcher(f, 2).FetchCharacterIDs(context.Background(), listKey)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(ids) != 2 || len(f.requested) != 2 {
		t.Fatalf("expected 2 pages, got ids=%v pages=%v", ids, f.requested)
	}
}

func TestURLBuilder(t *testing.T) {
	b := NewURLBuilder("https://jp.finalfantasyxiv.com/")
	got := b.SearchURL(listKey, 1)
	want := "https://jp.finalfantasyxiv.com/lodestone/character/?classjob=19&gcid=1&order=5&q=&race_tribe=tribe_1&worldname=Tonberry"
	if got != want {
		t.Fatalf("SearchURL = %s, want %s", got, want)
	}
	u, err := url.Parse(b.SearchURL(listKey, 3))
	if err != nil || u.Query().Get("page") != "3" {
		t.Fatalf("SearchURL page 3 = %v (%v)", u, err)
	}
	if got := b.ProfileURL("12345"); got != "https://jp.finalfantasyxiv.com/lodestone/character/12345/" {
		t.Fatalf("ProfileURL = %s", got)
	}
}
