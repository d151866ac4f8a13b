// Package extractor decodes PDF, DOCX and plain-text bytes into raw text.
package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ErrUnknownExtension is returned for extensions the native extractor cannot decode.
var ErrUnknownExtension = errors.New("extractor: unknown extension")

// Native extracts text in-process without any external service.
type Native struct{}

// NewNative creates a Native extractor.
func NewNative() *Native {
	return &Native{}
}

// ExtractRawText dispatches on the lower-cased extension (".pdf", ".docx", ".txt").
func (n *Native) ExtractRawText(ctx context.Context, data []byte, ext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(data)
	case ".docx":
		return extractDOCX(data)
	case ".txt":
		return extractPlain(data), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownExtension, ext)
	}
}

func extractPlain(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read pdf page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\f")
	}
	return sb.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open word/document.xml: %w", err)
		}
		defer rc.Close()
		return documentText(rc)
	}
	return "", errors.New("docx: word/document.xml not found")
}

// documentText walks the WordprocessingML token stream so that text inside
// tables is kept; paragraphs end with a newline and table cells with a tab.
func documentText(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse word/document.xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteString("\t")
			case "br":
				sb.WriteString("\n")
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			case "tc":
				sb.WriteString("\t")
			}
		case xml.CharData:
			if inText {
				sb.Write(el)
			}
		}
	}
	return sb.String(), nil
}
