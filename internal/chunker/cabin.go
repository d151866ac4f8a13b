package chunker

import (
	"regexp"
	"strings"

	"campus-rag-go/internal/model"
)

var (
	cabinDetectRe = regexp.MustCompile(`(?i)faculty\s+cabin|room\s+no|cabin\s+id`)
	personnelIDRe = regexp.MustCompile(`(?i)\b(?:tts\s*(?:id|no\.?|number)?|emp(?:loyee)?\.?\s*(?:id|no\.?))\s*[:\-]?\s*(\d{3,6})\b`)
	roomIDRe      = regexp.MustCompile(`(?i)\b(?:room\s*(?:no\.?|number)?|cabin\s*(?:id|no\.?)?)\s*[:\-]?\s*([a-z]?-?\d{2,5}[a-z]?)\b`)
)

// CabinStrategy 对教师办公室对照表做两遍切分：一遍以人员编号为键，一遍以房间号为键，
// 使“某人在哪个房间”和“某房间是谁”都能检索到。
type CabinStrategy struct {
	maxSize int
}

// NewCabinStrategy 创建教师办公室双视角切块策略。
func NewCabinStrategy(maxSize int) *CabinStrategy {
	return &CabinStrategy{maxSize: maxSize}
}

func (s *CabinStrategy) Name() string { return "cabin" }

func (s *CabinStrategy) Detect(text string) bool {
	return cabinDetectRe.MatchString(text)
}

func (s *CabinStrategy) Chunk(text string) []model.Chunk {
	lines := nonEmptyLines(text)
	var chunks []model.Chunk

	for _, b := range accumulate(lines, submatch(personnelIDRe), s.maxSize) {
		if b.key == "" {
			chunks = append(chunks, model.Chunk{
				Text:          b.text(),
				DataType:      model.DataTypeGeneric,
				StructuralKey: "preamble",
			})
			continue
		}
		chunks = append(chunks, model.Chunk{
			Text:          "Faculty TTS ID: " + b.key + "\n" + b.text(),
			DataType:      model.DataTypeFacultyMember,
			StructuralKey: b.key,
		})
	}

	for _, b := range accumulate(lines, submatch(roomIDRe), s.maxSize) {
		if b.key == "" {
			continue
		}
		chunks = append(chunks, model.Chunk{
			Text:          "Cabin/Room: " + b.key + "\n" + b.text(),
			DataType:      model.DataTypeRoomInfo,
			StructuralKey: b.key,
		})
	}

	// 整份文本都找不到任何键时交给兜底策略。
	for _, ch := range chunks {
		if ch.DataType != model.DataTypeGeneric {
			return chunks
		}
	}
	return nil
}

func submatch(re *regexp.Regexp) func(string) (string, bool) {
	return func(line string) (string, bool) {
		m := re.FindStringSubmatch(line)
		if m == nil {
			return "", false
		}
		return strings.ToUpper(m[1]), true
	}
}
