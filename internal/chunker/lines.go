package chunker

import (
	"strings"

	"campus-rag-go/internal/model"
)

// LineStrategy 把非空行贪婪地装入不超过 maxSize 字符的缓冲区，用作兜底。
type LineStrategy struct {
	maxSize int
}

// NewLineStrategy 创建按行累积策略。
func NewLineStrategy(maxSize int) *LineStrategy {
	return &LineStrategy{maxSize: maxSize}
}

func (s *LineStrategy) Name() string { return "lines" }

func (s *LineStrategy) Detect(text string) bool { return strings.TrimSpace(text) != "" }

func (s *LineStrategy) Chunk(text string) []model.Chunk {
	var (
		chunks []model.Chunk
		buf    strings.Builder
		size   int
	)
	flush := func() {
		if size == 0 {
			return
		}
		chunks = append(chunks, model.Chunk{Text: buf.String(), DataType: model.DataTypeGeneric})
		buf.Reset()
		size = 0
	}

	for _, line := range nonEmptyLines(text) {
		for _, part := range splitRunes(line, s.maxSize) {
			n := runeLen(part)
			if size > 0 && size+1+n > s.maxSize {
				flush()
			}
			if size > 0 {
				buf.WriteByte('\n')
				size++
			}
			buf.WriteString(part)
			size += n
		}
	}
	flush()
	return chunks
}

// splitRunes 把超过 max 个字符的行硬切为多段。
func splitRunes(line string, max int) []string {
	if max <= 0 || runeLen(line) <= max {
		return []string{line}
	}
	runes := []rune(line)
	var parts []string
	for start := 0; start < len(runes); start += max {
		end := start + max
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}
