package frontend

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/telhawk-systems/formrelay/internal/logging"
)

const (
	contentTypeHTML    = "text/html"
	contentTypeDefault = "text/plain"
)

// fallbackPages are served when a configured page file cannot be read, so
// the status code a client sees never depends on the page files.
var fallbackPages = map[int]string{
	http.StatusOK:                    "<!DOCTYPE html><html><body><p>OK</p></body></html>",
	http.StatusNotFound:              "<!DOCTYPE html><html><body><h1>404</h1><p>Page not found.</p></body></html>",
	http.StatusBadRequest:            "<!DOCTYPE html><html><body><h1>400</h1><p>Bad request.</p></body></html>",
	http.StatusLengthRequired:        "<!DOCTYPE html><html><body><h1>411</h1><p>Content-Length required.</p></body></html>",
	http.StatusRequestEntityTooLarge: "<!DOCTYPE html><html><body><h1>413</h1><p>Submission too large.</p></body></html>",
	http.StatusTooManyRequests:       "<!DOCTYPE html><html><body><h1>429</h1><p>Too many submissions, try again later.</p></body></html>",
}

// sendHTML writes the page at path with the given status.
func (h *Handler) sendHTML(w http.ResponseWriter, r *http.Request, path string, status int) {
	body, err := os.ReadFile(path)
	if err != nil {
		h.logger.WarnContext(r.Context(), "page unavailable, using fallback",
			logging.Path(path),
			logging.Error(err),
		)
		fallback, ok := fallbackPages[status]
		if !ok {
			fallback = fmt.Sprintf("<!DOCTYPE html><html><body><h1>%d</h1></body></html>", status)
		}
		body = []byte(fallback)
	}

	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(status)
	w.Write(body)
}

// sendError renders the error page with status.
func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, status int) {
	h.sendHTML(w, r, h.cfg.ErrorPage, status)
}

// resolveStatic maps a URL path to a file under the static root. Paths that
// would leave the root, name a dotfile, or fall under a hidden path are
// rejected.
func (h *Handler) resolveStatic(urlPath string) (string, bool) {
	rel := filepath.FromSlash(strings.TrimPrefix(urlPath, "/"))
	if !filepath.IsLocal(rel) {
		return "", false
	}
	// dotfiles include the store's temporary files written during Persist
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return "", false
		}
	}

	path := filepath.Join(h.cfg.StaticRoot, rel)
	if h.isHidden(path) {
		return "", false
	}
	return path, true
}

func (h *Handler) isHidden(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return true
	}
	for _, hidden := range h.hidden {
		if abs == hidden {
			return true
		}
		if rel, err := filepath.Rel(hidden, abs); err == nil && filepath.IsLocal(rel) {
			return true
		}
	}
	return false
}

func absPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = filepath.Clean(p)
		}
		out = append(out, abs)
	}
	return out
}

// contentType guesses from the file extension, defaulting to text/plain.
func contentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return contentTypeDefault
}
