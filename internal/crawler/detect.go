package crawler

import (
	"bytes"
	"errors"
)

// errBlockedPage 200 响应实际是维护或限流页面。
var errBlockedPage = errors.New("upstream served a maintenance or throttle page")

// 页面检测关键词（小写比较）
var blockedHints = [][]byte{
	[]byte("ただいまメンテナンス中です"),
	[]byte("メンテナンス作業を行っております"),
	[]byte("アクセスが集中"),
	[]byte("しばらく時間をおいて"),
	[]byte("under maintenance"),
	[]byte("temporarily unavailable"),
	[]byte("too many requests"),
	[]byte("rate limited"),
	[]byte("attention required"),
	[]byte("just a moment"),
	[]byte("checking your browser"),
	[]byte("cf-browser-verification"),
}

// 正常页面一定包含的结构标记。命中任意一个即视为正常页面，不做关键词检测。
var normalPageMarkers = [][]byte{
	[]byte("entry__link"),
	[]byte("character__selfintroduction"),
	[]byte("db-tooltip__item__mirage"),
	[]byte("btn__pager"),
	[]byte("parts__zero"),
}

// isBlockedPage 判断页面是否为维护或限流页面。
//
// 角色主页的自我介绍中可能出现任意文本，所以先以结构标记排除正常页面。
func isBlockedPage(body []byte) bool {
	if containsAny(body, normalPageMarkers) {
		return false
	}
	lower := bytes.ToLower(body)
	return containsAny(lower, blockedHints)
}

// containsAny 检查文本是否包含任意一个关键词
func containsAny(text []byte, keywords [][]byte) bool {
	for _, kw := range keywords {
		if bytes.Contains(text, kw) {
			return true
		}
	}
	return false
}
