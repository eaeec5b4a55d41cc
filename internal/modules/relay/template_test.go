package relay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TravisBrace/formspree/internal/models"
)

func TestRenderEmailTemplate(t *testing.T) {
	tpl := &models.EmailTemplateModel{
		Body:  "Hello **{{ name }}**, you said: {{message}}{{missing}}",
		Style: "p { color: #333; }",
	}
	fields := models.FieldList{}
	fields.Set("name", "Jane")
	fields.Set("message", "<script>alert(1)</script>")

	html, err := RenderEmailTemplate(tpl, fields)
	require.NoError(t, err)

	assert.Contains(t, html, "<strong>Jane</strong>")
	assert.Contains(t, html, "&lt;script&gt;")
	assert.NotContains(t, html, "<script>alert")
	assert.NotContains(t, html, "missing")
	assert.True(t, strings.HasPrefix(html, "<style>\np { color: #333; }\n</style>\n"))
}

func TestRenderEmailTemplateWithoutStyle(t *testing.T) {
	tpl := &models.EmailTemplateModel{Body: "New message from {{name}}"}
	fields := models.FieldList{}
	fields.Set("name", "Jane")

	html, err := RenderEmailTemplate(tpl, fields)
	require.NoError(t, err)
	assert.Contains(t, html, "New message from Jane")
	assert.NotContains(t, html, "<style>")
}
