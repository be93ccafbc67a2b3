package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTML(t *testing.T) {
	r := New()

	out, err := r.HTML("## Findings\n\n**Go 1.24** is out, see [release notes](https://go.dev/doc/go1.24).")
	require.NoError(t, err)
	assert.Contains(t, out, "<h2")
	assert.Contains(t, out, "<strong>Go 1.24</strong>")
	assert.Contains(t, out, `href="https://go.dev/doc/go1.24"`)
	assert.Contains(t, out, `target="_blank"`)
}

func TestHTMLTablesAndCode(t *testing.T) {
	out, err := New().HTML("| repo | stars |\n|---|---|\n| a/b | 10 |\n\n```go\nfmt.Println(1)\n```\n")
	require.NoError(t, err)
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, `<code class="language-go">`)
}

func TestHTMLSanitizes(t *testing.T) {
	out, err := New().HTML("hello <script>alert(1)</script> <a href=\"javascript:alert(1)\">x</a>")
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "javascript:")
}

func TestPartialHasCursor(t *testing.T) {
	assert.Contains(t, New().Partial("Searching the"), Cursor)
}
