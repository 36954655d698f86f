package domain

import (
	"fmt"
	"strings"
)

// Category is the closed set of spending categories a bill can be assigned.
// Labels are the strings shown in the bill spreadsheet and stored in the
// rule tables; they must stay stable.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryUtilities
	CategoryDining
	CategoryProduce
	CategoryTransport
	CategoryDailyExpenses
	CategoryClothing
	CategorySkincare
	CategoryGifts
	CategoryLeisure
	CategoryMiscellaneous
	CategoryHome
	CategoryMedical
	CategoryLargeItem
	CategoryVehicle
	CategorySkip
	CategoryIncome
)

var categoryLabels = [...]string{
	CategoryUnknown:       "unknown",
	CategoryUtilities:     "水电物业",
	CategoryDining:        "餐饮",
	CategoryProduce:       "买菜",
	CategoryTransport:     "交通",
	CategoryDailyExpenses: "日常开支",
	CategoryClothing:      "服装鞋帽",
	CategorySkincare:      "护肤品",
	CategoryGifts:         "人情往来",
	CategoryLeisure:       "休闲娱乐",
	CategoryMiscellaneous: "杂项",
	CategoryHome:          "家庭建设",
	CategoryMedical:       "医疗",
	CategoryLargeItem:     "大件",
	CategoryVehicle:       "养车",
	CategorySkip:          "skip",
	CategoryIncome:        "收入",
}

var categoryByLabel = func() map[string]Category {
	m := make(map[string]Category, len(categoryLabels))
	for c, label := range categoryLabels {
		m[label] = Category(c)
	}
	return m
}()

// String returns the spreadsheet label of the category.
func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryLabels) {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryLabels[c]
}

// ParseCategory looks up a category by its label.
func ParseCategory(label string) (Category, bool) {
	c, ok := categoryByLabel[label]
	return c, ok
}

// Categories returns every category in label-table order.
func Categories() []Category {
	out := make([]Category, len(categoryLabels))
	for i := range categoryLabels {
		out[i] = Category(i)
	}
	return out
}

// ExpenseCategories returns the categories a classifier may assign to an
// expense: everything except Unknown, Skip and Income.
func ExpenseCategories() []Category {
	var out []Category
	for _, c := range Categories() {
		if c.Assignable() {
			out = append(out, c)
		}
	}
	return out
}

// Assignable reports whether c is a real spending category.
func (c Category) Assignable() bool {
	return c > CategoryUnknown && c < CategorySkip
}

// Method records which classification tier produced a bill's category.
type Method int

const (
	MethodUnrecognized Method = iota
	MethodExactMatch
	MethodRegexMatch
	MethodTemporalCluster
	MethodLLMClassified
)

var methodLabels = [...]string{
	MethodUnrecognized:    "无法识别",
	MethodExactMatch:      "完全匹配",
	MethodRegexMatch:      "模糊匹配",
	MethodTemporalCluster: "菜场模式",
	MethodLLMClassified:   "LLM模式",
}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodLabels) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodLabels[m]
}

// Methods returns every method in label-table order.
func Methods() []Method {
	out := make([]Method, len(methodLabels))
	for i := range methodLabels {
		out[i] = Method(i)
	}
	return out
}

// Kind is the cash-flow direction of a bill, fixed at ingestion.
type Kind int

const (
	KindExpense Kind = iota
	KindIncome
	KindOther
)

var kindLabels = [...]string{
	KindExpense: "支出",
	KindIncome:  "收入",
	KindOther:   "不计支出",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindLabels) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindLabels[k]
}

// ParseKind maps a platform direction label to a Kind. Anything that is not
// plainly income or expense (e.g. "不计收支", "/") is Other.
func ParseKind(label string) Kind {
	switch strings.TrimSpace(label) {
	case "支出":
		return KindExpense
	case "收入":
		return KindIncome
	default:
		return KindOther
	}
}

// Source tags the platform a bill was exported from.
type Source string

const (
	SourceAlipay Source = "alipay"
	SourceWeChat Source = "wechat"
)

// ParseSource accepts a source tag in any letter case.
func ParseSource(s string) (Source, bool) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceAlipay:
		return SourceAlipay, true
	case SourceWeChat:
		return SourceWeChat, true
	}
	return "", false
}
