package crawler

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/PhantomL4rd/mirapuri-stats/internal/model"
)

// OptOutMarker 自我介绍中包含该字符串的角色不会被收录。
const OptOutMarker = "#NoMirapuriStats"

var (
	characterLinkRe = regexp.MustCompile(`/lodestone/character/(\d+)/?`)
	itemLinkRe      = regexp.MustCompile(`/lodestone/playguide/db/item/([0-9a-zA-Z]+)/?`)
	digitsRe        = regexp.MustCompile(`\d+`)
)

// slotLabels 装备分类标签 → 部位。未列出的分类（武器、饰品等）不参与统计。
var slotLabels = map[string]int{
	"頭防具": model.SlotHead,
	"胴防具": model.SlotBody,
	"手防具": model.SlotHands,
	"脚防具": model.SlotLegs,
	"足防具": model.SlotFeet,
	"Head":  model.SlotHead,
	"Body":  model.SlotBody,
	"Hands": model.SlotHands,
	"Legs":  model.SlotLegs,
	"Feet":  model.SlotFeet,
}

// SearchEntry 检索结果中的一名角色。
type SearchEntry struct {
	CharacterID string
	Level       int
}

// SearchPage 一页检索结果。
type SearchPage struct {
	Entries []SearchEntry
	HasNext bool
}

// GlamourEntry 角色主页上一个部位的幻影装备。
type GlamourEntry struct {
	SlotID int
	ItemID string
	Name   string
}

// Profile 角色主页的解析结果。
type Profile struct {
	Bio      string
	OptedOut bool
	Entries  []GlamourEntry
}

// ParseSearchPage 解析检索结果页。
//
// 缺少 ID 或等级的条目直接跳过；条目保持页面顺序。
func ParseSearchPage(body []byte) (*SearchPage, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	page := &SearchPage{}
	for _, link := range findAll(doc, func(n *html.Node) bool {
		return isElement(n, "a") && hasClass(n, "entry__link")
	}) {
		m := characterLinkRe.FindStringSubmatch(attr(link, "href"))
		if m == nil {
			continue
		}
		level, ok := entryLevel(link)
		if !ok {
			continue
		}
		page.Entries = append(page.Entries, SearchEntry{CharacterID: m[1], Level: level})
	}

	for _, next := range findAll(doc, func(n *html.Node) bool {
		return isElement(n, "a") && hasClass(n, "btn__pager__next")
	}) {
		href := strings.TrimSpace(attr(next, "href"))
		if href == "" || strings.HasPrefix(strings.ToLower(href), "javascript") || hasClass(next, "btn__pager__no") {
			continue
		}
		page.HasNext = true
		break
	}
	return page, nil
}

// entryLevel 取条目中第一个职业信息里的等级数字。
func entryLevel(entry *html.Node) (int, bool) {
	info := findFirst(entry, func(n *html.Node) bool { return hasClass(n, "entry__chara_info") })
	if info == nil {
		return 0, false
	}
	span := findFirst(info, func(n *html.Node) bool { return isElement(n, "span") })
	if span == nil {
		return 0, false
	}
	digits := digitsRe.FindString(textContent(span, false))
	if digits == "" {
		return 0, false
	}
	level, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return level, true
}

// ParseProfile 解析角色主页。
//
// 自我介绍含 OptOutMarker 时只返回 OptedOut，不解析装备。
// 同一部位只保留第一个条目，缺少部位或道具 ID 的条目被丢弃。
func ParseProfile(body []byte) (*Profile, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	p := &Profile{}
	if bio := findFirst(doc, func(n *html.Node) bool { return hasClass(n, "character__selfintroduction") }); bio != nil {
		p.Bio = collapseSpace(textContent(bio, false))
	}
	if HasOptOut(p.Bio) {
		p.OptedOut = true
		return p, nil
	}

	seen := make(map[int]bool)
	for _, mirage := range findAll(doc, func(n *html.Node) bool { return hasClass(n, "db-tooltip__item__mirage") }) {
		entry, ok := parseMirage(mirage)
		if !ok || seen[entry.SlotID] {
			continue
		}
		seen[entry.SlotID] = true
		p.Entries = append(p.Entries, entry)
	}
	return p, nil
}

// HasOptOut 判断自我介绍是否包含退出标记（忽略 ASCII 大小写）。
func HasOptOut(bio string) bool {
	return strings.Contains(strings.ToLower(bio), strings.ToLower(OptOutMarker))
}

func parseMirage(mirage *html.Node) (GlamourEntry, bool) {
	var itemID string
	for _, a := range findAll(mirage, func(n *html.Node) bool { return isElement(n, "a") }) {
		if m := itemLinkRe.FindStringSubmatch(attr(a, "href")); m != nil {
			itemID = m[1]
			break
		}
	}
	slot, ok := slotOf(mirage)
	if itemID == "" || !ok {
		return GlamourEntry{}, false
	}
	return GlamourEntry{
		SlotID: slot,
		ItemID: itemID,
		Name:   collapseSpace(textContent(mirage, true)),
	}, true
}

// slotOf 向上找到最近一个含分类标签的祖先，并映射为部位。
func slotOf(n *html.Node) (int, bool) {
	for anc := n.Parent; anc != nil; anc = anc.Parent {
		label := findFirst(anc, func(c *html.Node) bool { return hasClass(c, "db-tooltip__item__category") })
		if label == nil {
			continue
		}
		slot, ok := slotLabels[collapseSpace(textContent(label, false))]
		return slot, ok
	}
	return 0, false
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	if match(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

// textContent 拼接子树文本；skipLinks 为 true 时跳过 <a> 子树（“详细”链接）。
func textContent(n *html.Node, skipLinks bool) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
			return
		case skipLinks && isElement(n, "a"):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
