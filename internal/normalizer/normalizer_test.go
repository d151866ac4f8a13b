package normalizer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses horizontal whitespace", "Exam  \t on   Monday", "Exam on Monday"},
		{"caps consecutive newlines at three", "a\n\n\n\n\n\nb", "a\n\n\nb"},
		{"form feed becomes newline", "page one\fpage two", "page one\npage two"},
		{"strips page of page boilerplate", "Page 3 of 10\nContent", "Content"},
		{"strips digit only lines", "Intro\n12\nBody", "Intro\n\nBody"},
		{"drops copyright lines", "Keep\n\u00a9 2024 University\nMore", "Keep\n\nMore"},
		{"drops confidential lines", "This is CONFIDENTIAL data\nPublic", "Public"},
		{"ascii punctuation", "\u201cHi\u201d \u2018x\u2019 a\u2013b\u2014c wait\u2026", `"Hi" 'x' a-b-c wait...`},
		{"strips zero width and bom", "\ufeffab\u200bc\u200d", "abc"},
		{"normalizes line endings", "a\r\nb\rc", "a\nb\nc"},
		{"strips digit only lines with crlf", "Intro\r\n12\r\nBody", "Intro\n\nBody"},
		{
			"cr only copyright line drops one line",
			"Exam on 15 March 2024\rSyllabus\r\u00a9 2024 University\rFee payment last date 1 April 2024",
			"Exam on 15 March 2024\nSyllabus\n\nFee payment last date 1 April 2024",
		},
		{
			"cr only confidential line drops one line",
			"Notice\rConfidential draft\rExam 1 May 2024",
			"Notice\n\nExam 1 May 2024",
		},
		{"trims document", "  \n hello \n ", "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := "Title\n\n\n\n\n\u201cQuoted\u201d   text\r\n42\nEnd"
	once := Normalize(raw)
	assert.Equal(t, once, Normalize(once))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("calendar.PDF", 1024, 0))
	assert.NoError(t, Validate("notes.txt", DefaultMaxFileSize, 0))

	err := Validate("slides.pptx", 10, 0)
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	err = Validate("big.docx", DefaultMaxFileSize+1, 0)
	assert.True(t, errors.Is(err, ErrOversizedFile))

	err = Validate("small.txt", 2048, 1024)
	assert.True(t, errors.Is(err, ErrOversizedFile))
}

func TestFileType(t *testing.T) {
	ft, err := FileType("Faculty Cabins.DOCX")
	require.NoError(t, err)
	assert.Equal(t, "docx", ft)

	_, err = FileType("README")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

type stubExtractor struct {
	text string
	err  error
	ext  string
}

func (s *stubExtractor) ExtractRawText(_ context.Context, _ []byte, ext string) (string, error) {
	s.ext = ext
	return s.text, s.err
}

func TestPrepare(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes extracted text", func(t *testing.T) {
		ex := &stubExtractor{text: "  Fee   payment due\r\n"}
		text, err := Prepare(ctx, ex, "Circular.TXT", []byte("x"), 0)
		require.NoError(t, err)
		assert.Equal(t, "Fee payment due", text)
		assert.Equal(t, ".txt", ex.ext)
	})

	t.Run("blank extraction", func(t *testing.T) {
		ex := &stubExtractor{text: "\n7\n\u200b"}
		_, err := Prepare(ctx, ex, "empty.pdf", []byte("x"), 0)
		assert.ErrorIs(t, err, ErrEmptyExtraction)
	})

	t.Run("unsupported extension never reaches extractor", func(t *testing.T) {
		ex := &stubExtractor{text: "ignored"}
		_, err := Prepare(ctx, ex, "sheet.xlsx", []byte("x"), 0)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
		assert.Empty(t, ex.ext)
	})

	t.Run("extractor failure is wrapped", func(t *testing.T) {
		boom := errors.New("corrupt pdf")
		ex := &stubExtractor{err: boom}
		_, err := Prepare(ctx, ex, "broken.pdf", []byte("x"), 0)
		assert.ErrorIs(t, err, boom)
		assert.True(t, strings.Contains(err.Error(), "broken.pdf"))
	})
}
