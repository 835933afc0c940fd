package crawler

import (
	"net/url"
	"strconv"
	"strings"
)

// orderLevelDesc 上游检索的排序参数：等级降序。
const orderLevelDesc = "5"

// URLBuilder 构造上游检索页与角色主页的 URL。
type URLBuilder struct {
	base string
}

// NewURLBuilder 以站点根地址创建 URLBuilder，例如 https://jp.finalfantasyxiv.com。
func NewURLBuilder(base string) *URLBuilder {
	return &URLBuilder{base: strings.TrimRight(base, "/")}
}

// SearchURL 构造检索结果页 URL。
//
// 空关键词加上四个维度与等级降序排序；page <= 1 时不带页码，
// 与站点默认的第一页一致。
//
// 参数:
//
//	key: 检索键
//	page: 页码（从 1 开始）
//
// 返回值:
//
//	string: 完整的检索 URL
func (b *URLBuilder) SearchURL(key SearchKey, page int) string {
	values := url.Values{}
	values.Set("q", "")
	values.Set("worldname", key.World)
	values.Set("classjob", strconv.Itoa(key.ClassJobID))
	values.Set("race_tribe", key.RaceTribeID)
	values.Set("gcid", strconv.Itoa(key.GrandCompanyID))
	values.Set("order", orderLevelDesc)
	if page > 1 {
		values.Set("page", strconv.Itoa(page))
	}

	qs := values.Encode()
	qs = strings.ReplaceAll(qs, "+", "%20")
	return b.base + "/lodestone/character/?" + qs
}

// ProfileURL 构造角色主页 URL。
func (b *URLBuilder) ProfileURL(characterID string) string {
	return b.base + "/lodestone/character/" + url.PathEscape(characterID) + "/"
}
