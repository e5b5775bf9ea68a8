package storage

import (
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"unicode"

	"rainbow-buyers/pkg/apierror"
)

// resolveWithin maps a slash-separated client path onto a file below root.
// Dot-prefixed segments read as missing, which keeps in-flight temp files and
// dotfiles out of reach.
func resolveWithin(root string, clientPath string) (string, error) {
	p := strings.ReplaceAll(strings.TrimSpace(clientPath), `\`, "/")
	p = strings.Trim(p, "/")
	if p == "" {
		return root, nil
	}

	if strings.IndexFunc(p, unicode.IsControl) >= 0 {
		return "", apierror.New("INVALID_PATH", "path contains invalid characters", clientPath, http.StatusBadRequest)
	}

	for _, seg := range strings.Split(p, "/") {
		switch {
		case seg == "..":
			return "", apierror.New("PATH_TRAVERSAL", "path traversal attempt detected", clientPath, http.StatusForbidden)
		case strings.HasPrefix(seg, ".") && seg != ".":
			return "", &fs.PathError{Op: "resolve", Path: clientPath, Err: fs.ErrNotExist}
		}
	}

	resolved := filepath.Join(root, filepath.FromSlash(p))
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", apierror.New("PATH_TRAVERSAL", "resolved path is outside storage root", clientPath, http.StatusForbidden)
	}

	return resolved, nil
}
