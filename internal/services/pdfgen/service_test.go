package pdfgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/arbor"
)

const sampleArticle = `## Snapshot

Nvidia trades at $187.42 with forward earnings of $5.10 per share.

## Valuation Scenarios

| Scenario | Target |
|---|---|
| Bear | $122.40 |
| Base | $163.20 |
| Bull | $204.00 |

## Risks

- Demand normalization
- Export controls

[1](https://example.com/news/one)
`

func TestConvertMarkdownToPDF(t *testing.T) {
	service := NewService(arbor.NewLogger())

	data, err := service.ConvertMarkdownToPDF(sampleArticle, "Nvidia Deep Dive")
	require.NoError(t, err)
	require.NotEmpty(t, data)

	assert.Equal(t, "%PDF", string(data[:4]))
	assert.NoError(t, service.ValidatePDF(data))
}

func TestConvertStripsFrontMatter(t *testing.T) {
	service := NewService(arbor.NewLogger())

	withMeta := "---\ntitle: Nvidia Deep Dive\n---\n" + sampleArticle
	data, err := service.ConvertMarkdownToPDF(withMeta, "Nvidia Deep Dive")
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestValidatePDFRejectsGarbage(t *testing.T) {
	service := NewService(arbor.NewLogger())

	assert.Error(t, service.ValidatePDF(nil))
	assert.Error(t, service.ValidatePDF([]byte("not a pdf")))
}

func TestStripFrontMatter(t *testing.T) {
	assert.Equal(t, "body", stripFrontMatter("---\ntitle: x\n---\nbody"))
	assert.Equal(t, "no front matter", stripFrontMatter("no front matter"))
	assert.Equal(t, "---\nunclosed", stripFrontMatter("---\nunclosed"))
}
