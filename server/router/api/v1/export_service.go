package v1

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	aierrors "github.com/hrygo/recall/server/internal/errors"
	"github.com/hrygo/recall/store"
)

// Export formats.
const (
	ExportFormatMarkdown = "markdown"
	ExportFormatHTML     = "html"
)

var roleTitles = map[string]string{
	store.RoleUser:      "User",
	store.RoleAssistant: "Assistant",
	store.RoleSystem:    "System",
}

// ExportConversation renders the full history as Markdown or HTML.
// GET /api/v1/conversations/:uid/export?format=markdown|html
func (s *APIV1Service) ExportConversation(c echo.Context) error {
	ctx := c.Request().Context()

	format := c.QueryParam("format")
	if format == "" {
		format = ExportFormatMarkdown
	}
	if format != ExportFormatMarkdown && format != ExportFormatHTML {
		return respondError(c, aierrors.InvalidArgument(fmt.Sprintf("unsupported export format %q", format)))
	}

	conv, err := s.Store.GetConversation(ctx, c.Param("uid"))
	if err != nil {
		return respondError(c, err)
	}
	history, err := s.Store.ListFullHistory(ctx, conv.UID)
	if err != nil {
		return respondError(c, err)
	}

	doc := RenderMarkdown(conv, history)
	if format == ExportFormatMarkdown {
		return c.Blob(http.StatusOK, "text/markdown; charset=UTF-8", []byte(doc))
	}

	var body bytes.Buffer
	if err := s.markdown.Convert([]byte(doc), &body); err != nil {
		return respondError(c, err)
	}
	page := fmt.Sprintf("<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>%s</title></head>\n<body>\n%s</body>\n</html>\n",
		html.EscapeString(conv.Name), body.String())
	return c.HTML(http.StatusOK, page)
}

// RenderMarkdown formats a conversation transcript as Markdown.
func RenderMarkdown(conv *store.Conversation, history []*store.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", conv.Name)
	fmt.Fprintf(&b, "- Model: `%s`\n", conv.Model)
	if conv.SystemPrompt != "" {
		fmt.Fprintf(&b, "- System prompt: %s\n", conv.SystemPrompt)
	}
	b.WriteString("\n")

	for _, m := range history {
		title, ok := roleTitles[m.Role]
		if !ok {
			title = m.Role
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", title, m.Content)
		if m.Partial {
			b.WriteString("*(reply interrupted)*\n\n")
		}
	}
	return b.String()
}
