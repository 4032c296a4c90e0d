package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

// createTestDOCX builds a minimal DOCX archive in memory.
func createTestDOCX(t *testing.T, documentXML string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	w := zip.NewWriter(buf)

	ct, err := w.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="xml" ContentType="application/xml"/>
</Types>`))
	require.NoError(t, err)

	if documentXML != "" {
		doc, err := w.Create("word/document.xml")
		require.NoError(t, err)
		_, err = doc.Write([]byte(documentXML))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

const twoParagraphs = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Invoice </w:t></w:r><w:r><w:t>INV-42</w:t></w:r></w:p>
    <w:p><w:r><w:t>Total: 12.50 EUR</w:t></w:r></w:p>
  </w:body>
</w:document>`

func TestExtract(t *testing.T) {
	text, err := New().Extract(context.Background(), createTestDOCX(t, twoParagraphs), ContentType)
	require.NoError(t, err)
	assert.Equal(t, "Invoice INV-42\nTotal: 12.50 EUR", text)
}

func TestExtract_NotZip(t *testing.T) {
	_, err := New().Extract(context.Background(), []byte("plain bytes"), ContentType)
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestExtract_MissingDocumentXML(t *testing.T) {
	_, err := New().Extract(context.Background(), createTestDOCX(t, ""), ContentType)
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestExtract_MalformedXML(t *testing.T) {
	_, err := New().Extract(context.Background(), createTestDOCX(t, "<w:document><w:body>"), ContentType)
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestSupportedTypes(t *testing.T) {
	assert.Equal(t, []string{ContentType}, New().SupportedTypes())
}
