package chunker

import (
	"strings"

	"campus-rag-go/internal/model"
)

// defaultSeparators 从粗到细排列，最后的空串表示按字符切分。
var defaultSeparators = []string{"\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""}

// RecursiveStrategy 是通用的递归字符切分，总是命中。
type RecursiveStrategy struct {
	size       int
	overlap    int
	separators []string
}

// NewRecursiveStrategy 创建通用递归切分策略。
func NewRecursiveStrategy(size, overlap int) *RecursiveStrategy {
	return &RecursiveStrategy{size: size, overlap: overlap, separators: defaultSeparators}
}

func (s *RecursiveStrategy) Name() string { return "recursive" }

func (s *RecursiveStrategy) Detect(string) bool { return true }

func (s *RecursiveStrategy) Chunk(text string) []model.Chunk {
	pieces := s.split(text, s.separators)
	chunks := make([]model.Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, model.Chunk{Text: p, DataType: model.DataTypeGeneric})
	}
	return chunks
}

// split 选择文本中出现的第一个分隔符切开，过长的片段用更细的分隔符继续切分。
// 分隔符保留在片段末尾，因此拼接所有片段可以还原原文。
func (s *RecursiveStrategy) split(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var splits []string
	if sep == "" {
		splits = make([]string, 0, len(text))
		for _, r := range text {
			splits = append(splits, string(r))
		}
	} else {
		splits = strings.SplitAfter(text, sep)
	}

	var (
		final []string
		good  []string
	)
	for _, piece := range splits {
		if piece == "" {
			continue
		}
		if runeLen(piece) < s.size {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			final = append(final, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.merge(good)...)
	}
	return final
}

// merge 把小片段合并成不超过 size 的块，相邻块保留约 overlap 个字符的重叠。
func (s *RecursiveStrategy) merge(splits []string) []string {
	var (
		docs    []string
		current []string
		total   int
	)
	for _, piece := range splits {
		n := runeLen(piece)
		if total+n > s.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
				docs = append(docs, doc)
			}
			for total > s.overlap || (total+n > s.size && total > 0) {
				total -= runeLen(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(current, "")); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}
