// Package chunker 把规范化文本切分为检索单元。
//
// 切块策略按固定优先级逐一探测文本形态：学院名录、教师办公室对照表、导师分组，
// 最后是通用递归切分。结构化策略没有产出时退回到按行累积。
package chunker

import (
	"strings"
	"time"
	"unicode/utf8"

	"campus-rag-go/internal/model"
	"campus-rag-go/pkg/log"
)

// Strategy 是一种切块策略。Detect 判断文本是否符合该策略假设的形态。
type Strategy interface {
	Name() string
	Detect(text string) bool
	Chunk(text string) []model.Chunk
}

// Options 控制切块大小。
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	MaxBlockSize int
}

// Option 修改 Options。
type Option func(*Options)

// WithChunkSize 设置通用切块的目标大小（字符数）。
func WithChunkSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ChunkSize = size
		}
	}
}

// WithOverlap 设置通用切块相邻块之间的重叠字符数。
func WithOverlap(overlap int) Option {
	return func(o *Options) {
		if overlap >= 0 {
			o.ChunkOverlap = overlap
		}
	}
}

// WithMaxBlockSize 设置结构化切块与按行累积的单块上限。
func WithMaxBlockSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.MaxBlockSize = size
		}
	}
}

// DefaultOptions 返回默认参数：2000 / 400 / 1500。
func DefaultOptions() Options {
	return Options{ChunkSize: 2000, ChunkOverlap: 400, MaxBlockSize: 1500}
}

// Meta 是调用方提供的文档级元数据。
type Meta struct {
	Filename        string
	FileType        string
	UploadTimestamp string
	ContentHash     string
	Extra           map[string]string
}

// Chunker 持有按优先级排列的策略表与兜底策略。
type Chunker struct {
	strategies []Strategy
	fallback   Strategy
	now        func() time.Time
}

// New 使用默认策略表创建 Chunker。
func New(opts ...Option) *Chunker {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.ChunkOverlap >= o.ChunkSize {
		o.ChunkOverlap = o.ChunkSize / 5
	}
	return NewWithStrategies(NewLineStrategy(o.MaxBlockSize),
		NewSchoolStrategy(o.MaxBlockSize),
		NewCabinStrategy(o.MaxBlockSize),
		NewMentorStrategy(o.MaxBlockSize),
		NewRecursiveStrategy(o.ChunkSize, o.ChunkOverlap),
	)
}

// NewWithStrategies 以给定顺序注册策略，fallback 在结构化策略无产出时使用。
func NewWithStrategies(fallback Strategy, strategies ...Strategy) *Chunker {
	return &Chunker{strategies: strategies, fallback: fallback, now: time.Now}
}

// Chunk 选择第一个命中的策略切分文本，并补齐编号与元数据。
// 返回的切块 ID 与 ChunkIndex 都是从 0 开始的连续序号。
func (c *Chunker) Chunk(text string, meta Meta) ([]model.Chunk, string) {
	if strings.TrimSpace(text) == "" {
		return nil, ""
	}

	var (
		chunks []model.Chunk
		used   string
	)
	for _, s := range c.strategies {
		if !s.Detect(text) {
			continue
		}
		used = s.Name()
		chunks = s.Chunk(text)
		break
	}
	if len(chunks) == 0 && c.fallback != nil {
		if used != "" {
			log.Warnf("[Chunker] 策略 %s 未产出任何切块，回退到 %s, file: %s", used, c.fallback.Name(), meta.Filename)
		}
		used = c.fallback.Name()
		chunks = c.fallback.Chunk(text)
	}

	chunks = finalize(chunks)
	ts := meta.UploadTimestamp
	if ts == "" {
		ts = c.now().UTC().Format(time.RFC3339)
	}
	for i := range chunks {
		chunks[i].ID = i
		chunks[i].Metadata = model.ChunkMetadata{
			Filename:        meta.Filename,
			FileType:        meta.FileType,
			UploadTimestamp: ts,
			ChunkIndex:      i,
			TotalChunks:     len(chunks),
			ContentHash:     meta.ContentHash,
			Extra:           meta.Extra,
		}
	}
	log.Debugf("[Chunker] 文件 %s 使用策略 %s, 共 %d 个切块", meta.Filename, used, len(chunks))
	return chunks, used
}

// finalize 去除空白切块并重新计算长度。
func finalize(chunks []model.Chunk) []model.Chunk {
	out := chunks[:0]
	for _, ch := range chunks {
		ch.Text = strings.TrimSpace(ch.Text)
		if ch.Text == "" {
			continue
		}
		ch.Length = utf8.RuneCountInString(ch.Text)
		out = append(out, ch)
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// nonEmptyLines 返回去除首尾空白后的非空行。
func nonEmptyLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
