package relay

import (
	"bytes"
	"html/template"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"

	"github.com/TravisBrace/formspree/internal/models"
)

var emailMarkdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Linkify,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
	),
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// RenderEmailTemplate produces the notification body from an owner's
// custom template: {{field}} placeholders are replaced with the
// submitted values (escaped, a form post is hostile input), the result
// is rendered as Markdown and the template's style block is prepended.
// Unknown placeholders collapse to nothing.
func RenderEmailTemplate(tpl *models.EmailTemplateModel, fields models.FieldList) (string, error) {
	body := placeholderPattern.ReplaceAllStringFunc(tpl.Body, func(m string) string {
		name := strings.TrimSpace(placeholderPattern.FindStringSubmatch(m)[1])
		return template.HTMLEscapeString(fields.Get(name))
	})

	var out bytes.Buffer
	if err := emailMarkdown.Convert([]byte(body), &out); err != nil {
		return "", err
	}

	html := out.String()
	if style := strings.TrimSpace(tpl.Style); style != "" {
		html = "<style>\n" + style + "\n</style>\n" + html
	}
	return html, nil
}
