package model

// Term は学期名と学期コードの組。
type Term struct {
	Name string
	Code int
}

// Terms は既知の学期の一覧。古い順に並ぶ。
var Terms = []Term{
	{Name: "Fall 2022", Code: 2410},
	{Name: "Winter 2023", Code: 2420},
	{Name: "Spring 2023", Code: 2430},
	{Name: "Spring/Summer 2023", Code: 2440},
	{Name: "Summer 2023", Code: 2450},
	{Name: "Fall 2023", Code: 2460},
}

// LookupTerm は学期名から学期を検索する。
func LookupTerm(name string) (Term, bool) {
	for _, t := range Terms {
		if t.Name == name {
			return t, true
		}
	}
	return Term{}, false
}

// UnknownTermName は未知の学期コードに対するTermNameの戻り値。
const UnknownTermName = "???"

// TermName は学期コードから学期名を返す。未知のコードの場合はUnknownTermNameを返す。
func TermName(code int) string {
	for _, t := range Terms {
		if t.Code == code {
			return t.Name
		}
	}
	return UnknownTermName
}
