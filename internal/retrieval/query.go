package retrieval

import (
	"regexp"
	"strings"
)

// onTopicKeywords 命中任意一个即视为校园相关问题。
var onTopicKeywords = []string{
	"university", "college", "campus",
	"tts", "faculty", "professor", "teacher", "staff", "cabin", "room", "block",
	"course", "program", "department", "school", "engineering", "management",
	"admission", "fee", "exam", "test", "result", "grade", "marks",
	"hostel", "library", "lab", "laboratory",
	"dean", "hod", "head", "registrar", "principal", "chancellor",
	"student", "academic", "curriculum", "syllabus", "semester",
	"placement", "internship", "project", "research",
	"computer science", "mechanical", "electrical", "civil", "electronics",
	"information technology", "artificial intelligence", "data science",
	"mba", "mca", "btech", "mtech", "phd", "degree", "diploma",
	"schedule", "timetable", "calendar", "event", "workshop", "seminar",
	"mentor",
}

// offTopicKeywords 明显与校园无关的话题。
var offTopicKeywords = []string{
	"recipe", "cooking", "food", "restaurant", "burger", "pizza", "cake",
	"movie", "film", "actor", "actress", "celebrity", "music", "song",
	"sports", "football", "cricket", "basketball", "game",
	"travel", "vacation", "hotel", "flight", "tourism",
	"shopping", "product", "buy", "sell", "price", "amazon", "flipkart",
	"weather", "temperature", "forecast",
	"politics", "election", "government", "president", "minister",
	"stock market", "trading", "investment", "cryptocurrency", "bitcoin",
	"dating", "relationship", "marriage", "love",
	"health", "medicine", "doctor", "hospital", "disease",
}

// synonymGroup 的 anchor 出现在查询中时，追加 synonyms 的前两个。
type synonymGroup struct {
	anchor   string
	synonyms []string
}

var expansions = []synonymGroup{
	{"exam", []string{"exam", "examination", "test", "assessment"}},
	{"schedule", []string{"schedule", "timetable", "calendar", "timing"}},
	{"fee", []string{"fee", "fees", "payment", "cost", "tuition"}},
	{"admission", []string{"admission", "admissions", "enrollment", "registration"}},
	{"course", []string{"course", "subject", "program", "curriculum"}},
	{"faculty", []string{"faculty", "teacher", "professor", "instructor", "staff", "member"}},
	{"hostel", []string{"hostel", "accommodation", "housing", "residence"}},
	{"library", []string{"library", "books", "resources", "study materials"}},
	{"result", []string{"result", "results", "marks", "grades", "scores"}},
	{"degree", []string{"degree", "certificate", "diploma", "qualification"}},
	{"semester", []string{"semester", "term", "session", "academic period"}},
	{"department", []string{"department", "dept", "faculty", "school"}},
	{"staff", []string{"staff", "faculty", "employee", "teacher", "professor", "member"}},
	{"tts", []string{"tts", "teacher", "faculty", "staff", "employee id", "id"}},
	{"cabin", []string{"cabin", "room", "office", "chamber", "location"}},
	{"name", []string{"name", "faculty name", "staff name", "person", "individual"}},
}

const maxSynonyms = 2

var (
	identifierRe   = regexp.MustCompile(`(?i)\b(tts|id|room|cabin|block|number|no\.?)\s*:?\s*\d+`)
	labelledIDRe   = regexp.MustCompile(`(?i)\b(?:tts|id)\s*:?\s*(\d+)`)
	bareNumberRe   = regexp.MustCompile(`\b\d{4,5}\b`)
	structuredHint = []string{"cabin", "room"}
)

// identifierForms 是切块文本中视为“精确命中”的写法，%s 为编号。
var identifierForms = []string{
	"%s", "tts %s", "tts: %s", "tts no: %s", "tts no : %s", "tts no. %s",
	"id: %s", "id %s", "room %s", "cabin %s",
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// IsInScope 只有在出现无关话题关键词且没有任何校园关键词时才返回 false。
// 没有命中任何关键词的模糊问题默认放行。
func IsInScope(query string) bool {
	q := strings.ToLower(query)
	if !containsAny(q, offTopicKeywords) {
		return true
	}
	return containsAny(q, onTopicKeywords)
}

// Expand 把查询转为小写并追加同义词，用于提高召回。
func Expand(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	terms := []string{q}
	seen := map[string]struct{}{q: {}}
	for _, g := range expansions {
		if !strings.Contains(q, g.anchor) {
			continue
		}
		for _, syn := range g.synonyms[:maxSynonyms] {
			if _, ok := seen[syn]; ok {
				continue
			}
			seen[syn] = struct{}{}
			terms = append(terms, syn)
		}
	}
	return strings.Join(terms, " ")
}

// HasIdentifier 判断查询中是否带有编号、房间号等标识。
func HasIdentifier(query string) bool {
	return identifierRe.MatchString(query) || bareNumberRe.MatchString(query)
}

// ExtractIdentifiers 返回查询中的纯数字标识，保持出现顺序并去重。
func ExtractIdentifiers(query string) []string {
	var ids []string
	seen := map[string]struct{}{}
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if m := labelledIDRe.FindStringSubmatch(query); m != nil {
		add(m[1])
	}
	for _, n := range bareNumberRe.FindAllString(query, -1) {
		add(n)
	}
	return ids
}

// containsIdentifier 判断文本是否以任一已知写法包含某个标识。
func containsIdentifier(text string, ids []string) bool {
	lower := strings.ToLower(text)
	for _, id := range ids {
		for _, form := range identifierForms {
			if strings.Contains(lower, strings.ReplaceAll(form, "%s", id)) {
				return true
			}
		}
	}
	return false
}

// isStructuredQuery 判断是否需要在提示词中加入结构化数据说明。
func isStructuredQuery(query string, hasIdentifier bool) bool {
	return hasIdentifier || containsAny(strings.ToLower(query), structuredHint)
}
