package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	f, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestNative_PlainText(t *testing.T) {
	text, err := NewNative().ExtractRawText(context.Background(), []byte("Exam on 15 March 2024"), ".TXT")
	require.NoError(t, err)
	assert.Equal(t, "Exam on 15 March 2024", text)
}

func TestNative_DOCX(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>
<w:p><w:r><w:t>Faculty Cabin Allocation</w:t></w:r></w:p>
<w:tbl><w:tr>
<w:tc><w:p><w:r><w:t>TTS 4821</w:t></w:r></w:p></w:tc>
<w:tc><w:p><w:r><w:t>Cabin ID: 305</w:t></w:r></w:p></w:tc>
</w:tr></w:tbl>
</w:body>
</w:document>`

	text, err := NewNative().ExtractRawText(context.Background(), buildDOCX(t, doc), ".docx")
	require.NoError(t, err)
	assert.Contains(t, text, "Faculty Cabin Allocation\n")
	assert.Contains(t, text, "TTS 4821")
	assert.Contains(t, text, "Cabin ID: 305")
}

func TestNative_DOCXMissingDocument(t *testing.T) {
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)
	require.NoError(t, w.Close())

	_, err := NewNative().ExtractRawText(context.Background(), buf.Bytes(), ".docx")
	assert.Error(t, err)
}

func TestNative_UnknownExtension(t *testing.T) {
	_, err := NewNative().ExtractRawText(context.Background(), []byte("x"), ".pptx")
	assert.ErrorIs(t, err, ErrUnknownExtension)
}
