// Package normalizer 负责把提取出的原始文本清洗为可切块的规范文本。
package normalizer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrUnsupportedFormat 文件扩展名不在支持列表中。
	ErrUnsupportedFormat = errors.New("unsupported file type")
	// ErrEmptyExtraction 提取后的文本为空。
	ErrEmptyExtraction = errors.New("no text extracted from file")
	// ErrOversizedFile 文件超过配置的大小上限。
	ErrOversizedFile = errors.New("file exceeds size limit")
)

// DefaultMaxFileSize 是默认的单文件大小上限 (10MB)。
const DefaultMaxFileSize int64 = 10 * 1024 * 1024

var supportedExtensions = map[string]string{
	".pdf":  "pdf",
	".docx": "docx",
	".txt":  "txt",
}

// Extractor 把文件字节解码为原始文本。
type Extractor interface {
	ExtractRawText(ctx context.Context, data []byte, ext string) (string, error)
}

var (
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
	excessNewlines  = regexp.MustCompile(`\n{4,}`)
	pageOfPage      = regexp.MustCompile(`(?i)page \d+ of \d+`)
	digitOnlyLine   = regexp.MustCompile(`(?m)^\d+[ \t]*$`)
	copyrightLine   = regexp.MustCompile(`.*\x{00A9}.*`)
	confidentialRe  = regexp.MustCompile(`(?i).*confidential.*`)

	punctuation = strings.NewReplacer(
		"\u2018", "'", "\u2019", "'",
		"\u201c", `"`, "\u201d", `"`,
		"\u2013", "-", "\u2014", "-",
		"\u2026", "...",
		"\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "",
	)
)

// Normalize 清洗原始文本。规则按固定顺序执行，任何切块策略之前都必须先调用它。
// 换行符最先统一为 \n，按行匹配的规则依赖这一点。
func Normalize(raw string) string {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = excessNewlines.ReplaceAllString(text, "\n\n\n")
	text = strings.ReplaceAll(text, "\f", "\n")
	text = pageOfPage.ReplaceAllString(text, "")
	text = digitOnlyLine.ReplaceAllString(text, "")
	text = copyrightLine.ReplaceAllString(text, "")
	text = confidentialRe.ReplaceAllString(text, "")
	text = punctuation.Replace(text)
	return strings.TrimSpace(text)
}

// FileType 返回文件的类型标识（不带点的小写扩展名），不支持时返回 ErrUnsupportedFormat。
func FileType(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fileType, ok := supportedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return fileType, nil
}

// SupportedExtensions 返回支持的扩展名列表。
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".txt"}
}

// Validate 检查扩展名与文件大小。maxBytes <= 0 时使用 DefaultMaxFileSize。
func Validate(filename string, size int64, maxBytes int64) error {
	if _, err := FileType(filename); err != nil {
		return err
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileSize
	}
	if size > maxBytes {
		return fmt.Errorf("%w: %d bytes > %d bytes", ErrOversizedFile, size, maxBytes)
	}
	return nil
}

// Prepare 校验、提取并清洗一个文件，返回规范化文本。
func Prepare(ctx context.Context, extractor Extractor, filename string, data []byte, maxBytes int64) (string, error) {
	if err := Validate(filename, int64(len(data)), maxBytes); err != nil {
		return "", err
	}
	raw, err := extractor.ExtractRawText(ctx, data, strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", filename, err)
	}
	text := Normalize(raw)
	if text == "" {
		return "", fmt.Errorf("%s: %w", filename, ErrEmptyExtraction)
	}
	return text, nil
}
