package crawler

import (
	"reflect"
	"testing"

	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
)

func TestParseSearchPage(t *testing.T) {
	body := searchPageHTML(true,
		SearchEntry{CharacterID: "1001", Level: 100},
		SearchEntry{CharacterID: "1002", Level: 99},
	)
	page, err := ParseSearchPage([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []SearchEntry{{"1001", 100}, {"1002", 99}}
	if !reflect.DeepEqual(page.Entries, want) {
		t.Fatalf("entries = %+v, want %+v", page.Entries, want)
	}
	if !page.HasNext {
		t.Fatal("expected next page")
	}
}

func TestParseSearchPage_DisabledNextLink(t *testing.T) {
	page, err := ParseSearchPage([]byte(searchPageHTML(false, SearchEntry{CharacterID: "1", Level: 100})))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if page.HasNext {
		t.Fatal("disabled pager link must not count as next page")
	}
}

func TestParseSearchPage_SkipsMalformedEntries(t *testing.T) {
	body := `<html><body>` +
		`<a class="entry__link" href="/lodestone/character/2001/"><ul class="entry__chara_info"><li><span>100</span></li></ul></a>` +
		`<a class="entry__link" href="/lodestone/character/2002/"><p>no level</p></a>` +
		`<a class="entry__link" href="/lodestone/freecompany/3/"><ul class="entry__chara_info"><li><span>100</span></li></ul></a>` +
		`<a class="entry__link" href="/lodestone/character/2003/"><ul class="entry__chara_info"><li><span>--</span></li></ul></a>` +
		`</body></html>`
	page, err := ParseSearchPage([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(page.Entries) != 1 || page.Entries[0].CharacterID != "2001" {
		t.Fatalf("expected only the well-formed entry, got %+v", page.Entries)
	}
	if page.HasNext {
		t.Fatal("page without pager must not have next")
	}
}

func TestParseProfile_ArmorSlotsOnly(t *testing.T) {
	p, err := ParseProfile([]byte(fullGlamourProfile("よろしく")))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.OptedOut {
		t.Fatal("unexpected opt-out")
	}
	want := []GlamourEntry{
		{SlotID: model.SlotHead, ItemID: "h0001", Name: "ハット"},
		{SlotID: model.SlotBody, ItemID: "b0001", Name: "コート"},
		{SlotID: model.SlotHands, ItemID: "g0001", Name: "グローブ"},
		{SlotID: model.SlotLegs, ItemID: "l0001", Name: "ボトム"},
		{SlotID: model.SlotFeet, ItemID: "f0001", Name: "ブーツ"},
	}
	if !reflect.DeepEqual(p.Entries, want) {
		t.Fatalf("entries = %+v, want %+v", p.Entries, want)
	}
}

func TestParseProfile_EnglishLabelsAndMissingLink(t *testing.T) {
	noLink := `<div class="item_detail_box"><p class="db-tooltip__item__category">Feet</p>` +
		`<div class="db-tooltip__item__mirage"><p>Boots</p></div></div>`
	body := profileHTML("", itemBlock("Head", "abc123", "Hat"), noLink)

	p, err := ParseProfile([]byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []GlamourEntry{{SlotID: model.SlotHead, ItemID: "abc123", Name: "Hat"}}
	if !reflect.DeepEqual(p.Entries, want) {
		t.Fatalf("entries = %+v, want %+v", p.Entries, want)
	}
}

func TestParseProfile_OptOut(t *testing.T) {
	p, err := ParseProfile([]byte(fullGlamourProfile("統計には載せないでください #nomirapuristats")))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !p.OptedOut {
		t.Fatal("expected opt-out")
	}
	if len(p.Entries) != 0 {
		t.Fatalf("opted-out profile must not yield entries, got %+v", p.Entries)
	}
}

func TestParseProfile_NoGlamour(t *testing.T) {
	p, err := ParseProfile([]byte(profileHTML("hi")))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(p.Entries) != 0 || p.Bio != "hi" {
		t.Fatalf("unexpected profile %+v", p)
	}
}
