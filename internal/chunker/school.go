package chunker

import (
	"regexp"
	"strings"

	"campus-rag-go/internal/model"
)

var (
	schoolHeaderRe = regexp.MustCompile(`(?i)^(school\s+of\s+[a-z][a-z&,\s\-]*)$`)
	deanFieldRe    = regexp.MustCompile(`(?i)^(associate\s+dean|assoc\.?\s*dean|dean)\s*[:\-]\s*(.+)$`)
	deanAnyRe      = regexp.MustCompile(`(?im)^\s*(associate\s+dean|assoc\.?\s*dean|dean)\s*[:\-]`)
)

// SchoolStrategy 处理学院名录：每个学院一个汇总块，院长和副院长各自再生成一条记录。
type SchoolStrategy struct {
	maxSize int
}

// NewSchoolStrategy 创建学院名录切块策略。
func NewSchoolStrategy(maxSize int) *SchoolStrategy {
	return &SchoolStrategy{maxSize: maxSize}
}

func (s *SchoolStrategy) Name() string { return "school" }

// Detect 要求同时出现学院标题行与院长字段。
func (s *SchoolStrategy) Detect(text string) bool {
	if !deanAnyRe.MatchString(text) {
		return false
	}
	for _, line := range nonEmptyLines(text) {
		if schoolHeaderRe.MatchString(line) {
			return true
		}
	}
	return false
}

func (s *SchoolStrategy) Chunk(text string) []model.Chunk {
	var (
		chunks   []model.Chunk
		preamble []string
		school   string
		body     []string
	)

	emit := func() {
		if school == "" {
			return
		}
		chunks = append(chunks, s.schoolBlocks(school, body)...)
		chunks = append(chunks, s.deanRecords(school, body)...)
	}

	for _, line := range nonEmptyLines(text) {
		if m := schoolHeaderRe.FindStringSubmatch(line); m != nil {
			emit()
			school = strings.TrimSpace(m[1])
			body = nil
			continue
		}
		if school == "" {
			preamble = append(preamble, line)
			continue
		}
		body = append(body, line)
	}
	emit()

	if len(preamble) > 0 && len(chunks) > 0 {
		head := model.Chunk{
			Text:          strings.Join(preamble, "\n"),
			DataType:      model.DataTypeGeneric,
			StructuralKey: "preamble",
		}
		chunks = append([]model.Chunk{head}, chunks...)
	}
	return chunks
}

// schoolBlocks 生成学院汇总块，正文超过上限时以相同键拆成多块，每块都带学院标题。
func (s *SchoolStrategy) schoolBlocks(school string, body []string) []model.Chunk {
	header := "School: " + school
	sameSchool := func(string) (string, bool) { return school, true }
	blocks := accumulate(body, sameSchool, budget(s.maxSize, header))
	if len(blocks) == 0 {
		return []model.Chunk{{Text: header, DataType: model.DataTypeSchoolInfo, StructuralKey: school}}
	}
	chunks := make([]model.Chunk, 0, len(blocks))
	for _, b := range blocks {
		chunks = append(chunks, model.Chunk{
			Text:          header + "\n" + b.text(),
			DataType:      model.DataTypeSchoolInfo,
			StructuralKey: school,
		})
	}
	return chunks
}

// deanRecords 从学院正文中切出院长与副院长记录，记录延续到下一个院长字段为止。
// 超过上限的简介以相同类型和键另起续块，续块重复学院与院长字段行。
func (s *SchoolStrategy) deanRecords(school string, body []string) []model.Chunk {
	var (
		records []model.Chunk
		current *model.Chunk
		head    string
		size    int
	)
	for _, line := range body {
		if m := deanFieldRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				records = append(records, *current)
			}
			dt := model.DataTypeDeanInfo
			if !strings.EqualFold(strings.TrimSpace(m[1]), "dean") {
				dt = model.DataTypeAssocDeanInfo
			}
			head = "School: " + school + "\n" + line
			current = &model.Chunk{Text: head, DataType: dt, StructuralKey: school}
			size = runeLen(head)
			continue
		}
		if current == nil {
			continue
		}
		n := runeLen(line)
		if size+1+n > s.maxSize && current.Text != head {
			records = append(records, *current)
			current = &model.Chunk{Text: head, DataType: current.DataType, StructuralKey: school}
			size = runeLen(head)
		}
		current.Text += "\n" + line
		size += 1 + n
	}
	if current != nil {
		records = append(records, *current)
	}
	return records
}

// budget 返回扣除标题行后留给正文的长度。
func budget(maxSize int, header string) int {
	if b := maxSize - runeLen(header) - 1; b > 0 {
		return b
	}
	return 1
}
