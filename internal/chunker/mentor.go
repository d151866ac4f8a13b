package chunker

import (
	"regexp"
	"strings"

	"campus-rag-go/internal/model"
)

var (
	mentorHeaderRe = regexp.MustCompile(`(?i)^(?:mentor(?:\s+name)?|name\s+of\s+the\s+mentor)\s*[:\-]\s*(.+)$`)
	mentorDetectRe = regexp.MustCompile(`(?im)^\s*(?:mentor(?:\s+name)?|name\s+of\s+the\s+mentor)\s*[:\-]\s*\S`)
	mentorIDRe     = regexp.MustCompile(`\b(\d{3,6})\b`)
	mentorNameRe   = regexp.MustCompile(`\s*[(\[].*$`)
)

// MentorStrategy 按导师分组切分导师-学生名单，每块都带上导师名和编号。
type MentorStrategy struct {
	maxSize int
}

// NewMentorStrategy 创建导师分组切块策略。
func NewMentorStrategy(maxSize int) *MentorStrategy {
	return &MentorStrategy{maxSize: maxSize}
}

func (s *MentorStrategy) Name() string { return "mentor" }

func (s *MentorStrategy) Detect(text string) bool {
	return mentorDetectRe.MatchString(text)
}

func (s *MentorStrategy) Chunk(text string) []model.Chunk {
	var chunks []model.Chunk
	for _, b := range accumulate(nonEmptyLines(text), mentorKey, s.maxSize) {
		if b.key == "" {
			chunks = append(chunks, model.Chunk{
				Text:          b.text(),
				DataType:      model.DataTypeGeneric,
				StructuralKey: "preamble",
			})
			continue
		}
		name, id := splitMentor(b.key)
		prefix := "Mentor: " + name
		if id != "" {
			prefix += " (ID " + id + ")"
		}
		chunks = append(chunks, model.Chunk{
			Text:          prefix + "\n" + b.text(),
			DataType:      model.DataTypeMentorMentee,
			StructuralKey: name,
		})
	}
	return chunks
}

func mentorKey(line string) (string, bool) {
	m := mentorHeaderRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// splitMentor 从 "Dr. S. Priya (TTS 5567)" 这类值中拆出姓名与编号。
func splitMentor(value string) (name, id string) {
	if m := mentorIDRe.FindStringSubmatch(value); m != nil {
		id = m[1]
	}
	name = strings.TrimSpace(mentorNameRe.ReplaceAllString(value, ""))
	if name == "" {
		name = value
	}
	return name, id
}
