package handler

import (
	"net/http"
	"os"
	"path"

	"rainbow-buyers/internal/storage"
)

const indexFile = "index.html"

// PageHandler serves the storefront's static build. Unknown paths fall back to
// index.html so client-side routes resolve.
type PageHandler struct {
	store *storage.Storage
}

func NewPageHandler(store *storage.Storage) *PageHandler {
	return &PageHandler{store: store}
}

func (h *PageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	clientPath := path.Clean("/" + r.URL.Path)
	if info, err := h.store.Stat(clientPath); err == nil && info.IsDir() {
		clientPath = path.Join(clientPath, indexFile)
	}

	file, err := h.store.OpenForRead(clientPath)
	if err != nil {
		if !os.IsNotExist(err) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		file, err = h.store.OpenForRead("/" + indexFile)
		if err != nil {
			http.NotFound(w, r)
			return
		}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), file)
}
