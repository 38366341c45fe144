package handler

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"go-auth-service/docs"
)

var swaggerPage = template.Must(template.New("swagger").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>{{.Title}}</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
    <style>body{margin:0;background:#fafafa;}#swagger-ui{max-width:1200px;margin:0 auto;}</style>
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: {{.DocumentURL}},
        dom_id: '#swagger-ui',
        deepLinking: true,
        displayRequestDuration: true,
        persistAuthorization: true
      });
    </script>
  </body>
</html>`))

const swaggerCSP = "default-src 'self'; connect-src 'self' https://unpkg.com; script-src 'self' 'unsafe-inline' https://unpkg.com; style-src 'self' 'unsafe-inline' https://unpkg.com; img-src 'self' data: https://validator.swagger.io"

type DocsHandler struct {
	documentPath string
	embedded     []byte
	page         []byte
}

// NewDocsHandler serves the OpenAPI document at documentPath, re-read on each
// request so edits show up without a restart. An empty or unreadable path
// falls back to the copy built into the binary.
func NewDocsHandler(documentPath string) *DocsHandler {
	var page bytes.Buffer
	if err := swaggerPage.Execute(&page, struct {
		Title       string
		DocumentURL string
	}{Title: "Auth Service API Docs", DocumentURL: "/openapi.yaml"}); err != nil {
		panic(err)
	}

	return &DocsHandler{
		documentPath: strings.TrimSpace(documentPath),
		embedded:     docs.OpenAPI,
		page:         page.Bytes(),
	}
}

func (h *DocsHandler) document() []byte {
	if h.documentPath == "" {
		return h.embedded
	}
	content, err := os.ReadFile(h.documentPath)
	if err != nil {
		slog.Warn("openapi document unreadable; serving built-in copy", "path", h.documentPath, "error", err)
		return h.embedded
	}
	return content
}

func (h *DocsHandler) OpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.document())
}

func (h *DocsHandler) SwaggerUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Security-Policy", swaggerCSP)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.page)
}
