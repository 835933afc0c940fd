package crawler

import (
	"fmt"
	"strings"
)

// searchPageHTML 构造一页检索结果。
func searchPageHTML(hasNext bool, entries ...SearchEntry) string {
	var sb strings.Builder
	sb.WriteString(`<html><body><div class="ldst__window">`)
	for _, e := range entries {
		fmt.Fprintf(&sb, `<div class="entry"><a href="/lodestone/character/%s/" class="entry__link">`+
			`<div class="entry__chara__face"><img src="x.jpg"></div>`+
			`<div class="entry__box entry__box--world"><p class="entry__name">Chara %s</p>`+
			`<p class="entry__world">Tonberry [Elemental]</p>`+
			`<ul class="entry__chara_info"><li><i class="list__ic__class"><img src="c.png"></i><span>%d</span></li>`+
			`<li><i class="list__ic__gc"></i><span>Lv 999</span></li></ul></div></a></div>`,
			e.CharacterID, e.CharacterID, e.Level)
	}
	if hasNext {
		sb.WriteString(`<ul class="btn__pager"><li><a href="/lodestone/character/?page=2" class="btn__pager__next">次へ</a></li></ul>`)
	} else {
		sb.WriteString(`<ul class="btn__pager"><li><a href="javascript:void(0);" class="btn__pager__next btn__pager__no">次へ</a></li></ul>`)
	}
	sb.WriteString(`</div></body></html>`)
	return sb.String()
}

// itemBlock 构造角色主页上的一个装备框。
func itemBlock(category, itemID, name string) string {
	return `<div class="item_detail_box"><div class="db-tooltip__l_main">` +
		`<p class="db-tooltip__item__category">` + category + `</p></div>` +
		`<div class="db-tooltip__item__mirage"><div class="db-tooltip__item__mirage__ic"><img src="i.png"></div>` +
		`<p>` + name + `<a href="/lodestone/playguide/db/item/` + itemID + `/" class="db-tooltip__item__mirage__btn">詳細</a></p>` +
		`</div></div>`
}

// profileHTML 构造角色主页。
func profileHTML(bio string, blocks ...string) string {
	return `<html><body><div class="character__profile">` +
		`<div class="character__selfintroduction">` + bio + `</div>` +
		`<div class="character__detail">` + strings.Join(blocks, "") + `</div>` +
		`</div></body></html>`
}

func fullGlamourProfile(bio string) string {
	return profileHTML(bio,
		itemBlock("片手剣", "w0001", "ウェポン"),
		itemBlock("頭防具", "h0001", "ハット"),
		itemBlock("胴防具", "b0001", "コート"),
		itemBlock("手防具", "g0001", "グローブ"),
		itemBlock("脚防具", "l0001", "ボトム"),
		itemBlock("足防具", "f0001", "ブーツ"),
		itemBlock("指輪", "r0001", "リング"),
	)
}
