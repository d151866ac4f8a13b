// Package events 从规范化文本中抽取带日期的校园日历事件。
package events

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"campus-rag-go/internal/model"
	"campus-rag-go/pkg/log"
)

// MinConfidence 是事件被保留的置信度下限（不含）。
const MinConfidence = 0.4

// keywordRule 把一组关键词映射到事件类型，按表中顺序匹配第一条。
type keywordRule struct {
	eventType model.EventType
	keywords  []string
}

var keywordTable = []keywordRule{
	{model.EventExam, []string{"exam", "examination", "test", "assessment", "evaluation", "conducted", "scheduled", "semester"}},
	{model.EventRegistration, []string{"registration", "register", "enroll", "enrollment", "admission", "complete", "course"}},
	{model.EventDeadline, []string{"deadline", "last date", "due date", "final date", "closing date", "due", "by", "must", "submission"}},
	{model.EventFee, []string{"fee", "payment", "tuition", "charges", "dues", "paid", "pay"}},
	{model.EventHoliday, []string{"holiday", "vacation", "break", "closed", "off", "festival", "celebration"}},
	{model.EventWorkshop, []string{"workshop", "seminar", "conference", "training", "session", "event", "fair", "symposium"}},
	{model.EventResult, []string{"result", "results", "marks", "grades", "score", "published", "declared"}},
	{model.EventRevaluation, []string{"revaluation", "recheck", "review", "appeal"}},
	{model.EventInternship, []string{"internship", "placement", "job", "career", "recruitment", "fair"}},
	{model.EventProject, []string{"project", "thesis", "dissertation", "submission", "submissions"}},
	{model.EventAcademic, []string{"academic", "calendar", "schedule", "important", "dates", "university"}},
}

var typeWeights = map[model.EventType]float64{
	model.EventExam:         0.9,
	model.EventDeadline:     0.9,
	model.EventRegistration: 0.8,
	model.EventResult:       0.8,
	model.EventRevaluation:  0.8,
	model.EventFee:          0.7,
}

const defaultTypeWeight = 0.6

var highConfidencePhrases = []string{
	"last date", "deadline", "due date", "final date", "exam schedule", "registration", "fee payment",
}

var whitespaceRe = regexp.MustCompile(`\s+`)

const (
	minLineLength  = 10
	maxTitleLength = 200
	maxDescLength  = 100
	nearPosition   = 100
	yearWindow     = 5
)

// Extractor 抽取事件。时钟可注入，用于确定有效日期窗口。
type Extractor struct {
	now func() time.Time
}

// Option 配置 Extractor。
type Option func(*Extractor)

// WithClock 替换获取当前时间的函数。
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// NewExtractor 创建事件抽取器。
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract 逐行扫描文本，返回去重并按日期升序排列的事件。
// 抽取过程中的任何意外都只会被记录，并返回空结果。
func (e *Extractor) Extract(text, sourceFile string) (events []model.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[EventExtractor] 抽取事件异常, file: %s, panic: %v", sourceFile, r)
			events = []model.Event{}
		}
	}()

	from, to := e.window()
	lines := strings.Split(text, "\n")
	var found []model.Event

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if utf8.RuneCountInString(line) < minLineLength {
			continue
		}
		eventType, typed := detectEventType(line)
		if !typed && !hasDate(line) {
			continue
		}
		if !typed {
			eventType = model.EventAcademic
		}

		var prev, next string
		if i > 0 {
			prev = lines[i-1]
		}
		if i+1 < len(lines) {
			next = lines[i+1]
		}
		surrounding := prev + " " + line + " " + next

		for _, dm := range extractDates(surrounding, from, to) {
			confidence := confidenceFor(line, eventType, dm)
			if confidence <= MinConfidence {
				log.Debugf("[EventExtractor] 置信度不足, 丢弃: %q on %s (%.2f)", line, dm.date, confidence)
				continue
			}
			found = append(found, model.Event{
				Title:       cleanTitle(line),
				Date:        dm.date,
				SourceFile:  sourceFile,
				EventType:   eventType,
				Description: describe(line),
				Confidence:  confidence,
				IsActive:    true,
			})
		}
	}

	events = dedupe(found)
	sort.SliceStable(events, func(a, b int) bool { return events[a].Date < events[b].Date })
	log.Infof("[EventExtractor] 从文件 %s 中抽取到 %d 个事件", sourceFile, len(events))
	return events
}

// window 返回 [今年-5 年 1 月 1 日, 今年+5 年 12 月 31 日]。
func (e *Extractor) window() (string, string) {
	year := e.now().Year()
	return fmt.Sprintf("%04d-01-01", year-yearWindow), fmt.Sprintf("%04d-12-31", year+yearWindow)
}

// DetectEventType 返回文本命中的第一个事件类型。
func DetectEventType(text string) (model.EventType, bool) {
	return detectEventType(text)
}

func detectEventType(text string) (model.EventType, bool) {
	lower := strings.ToLower(text)
	for _, rule := range keywordTable {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.eventType, true
			}
		}
	}
	return "", false
}

// extractDates 依次应用日期规则，返回落在有效窗口内的日期。
func extractDates(text, from, to string) []dateMatch {
	var out []dateMatch
	for _, p := range datePatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			groups := []string{text[loc[2]:loc[3]], text[loc[4]:loc[5]], text[loc[6]:loc[7]]}
			date, err := p.parse(groups)
			if err != nil {
				log.Debugf("[EventExtractor] 跳过无法解析的日期 %q: %v", text[loc[0]:loc[1]], err)
				continue
			}
			if date < from || date > to {
				continue
			}
			out = append(out, dateMatch{original: text[loc[0]:loc[1]], date: date, position: loc[0]})
		}
	}
	return out
}

func confidenceFor(line string, eventType model.EventType, dm dateMatch) float64 {
	weight, ok := typeWeights[eventType]
	if !ok {
		weight = defaultTypeWeight
	}
	confidence := 0.5 + weight*0.3
	if dm.position < nearPosition {
		confidence += 0.1
	}
	lower := strings.ToLower(line)
	for _, phrase := range highConfidencePhrases {
		if strings.Contains(lower, phrase) {
			confidence += 0.2
			break
		}
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

// cleanTitle 折叠空白、截断到 200 个字符并把首字母大写。
func cleanTitle(line string) string {
	title := strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength]) + "..."
	}
	r, size := utf8.DecodeRuneInString(title)
	if size == 0 {
		return title
	}
	return string(unicode.ToUpper(r)) + title[size:]
}

func describe(line string) string {
	if runes := []rune(line); len(runes) > maxDescLength {
		return string(runes[:maxDescLength]) + "..."
	}
	return line
}

// dedupe 以 (title, date, type) 去重，保留第一次出现的事件。
func dedupe(events []model.Event) []model.Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		key := ev.Title + "-" + ev.Date + "-" + string(ev.EventType)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ev)
	}
	return out
}
