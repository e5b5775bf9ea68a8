package handler

import (
	"html/template"
	"net/http"
	"os"
	"strings"

	"rainbow-buyers/internal/util"
)

const swaggerCSP = "default-src 'self'; connect-src 'self' https://unpkg.com; script-src 'self' 'unsafe-inline' https://unpkg.com; style-src 'self' 'unsafe-inline' https://unpkg.com; img-src 'self' data: https://validator.swagger.io"

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
        url: {{.SpecURL}},
        dom_id: '#swagger-ui',
        deepLinking: true,
        withCredentials: true
      });
    </script>
  </body>
</html>`))

// DocsHandler serves the OpenAPI document from disk and a Swagger UI page
// pointing at it.
type DocsHandler struct {
	specPath string
	title    string
	resp     *Responder
}

func NewDocsHandler(specPath string, title string, resp *Responder) *DocsHandler {
	return &DocsHandler{specPath: strings.TrimSpace(specPath), title: title, resp: resp}
}

func (h *DocsHandler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	content, err := os.ReadFile(h.specPath)
	if h.specPath == "" || err != nil {
		h.resp.failure(w, http.StatusNotFound, "OpenAPI document not found", nil)
		return
	}

	etag := `"` + util.ShortHash(content) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (h *DocsHandler) SwaggerUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Security-Policy", swaggerCSP)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = swaggerPage.Execute(w, struct {
		Title   string
		SpecURL string
	}{Title: h.title, SpecURL: "/openapi.yaml"})
}
