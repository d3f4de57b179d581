package api

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// staticHandler serves the built front end from dir. Paths that do not name
// a file fall back to index.html so client-side routes survive a reload.
func (s *Server) staticHandler(dir string) http.Handler {
	root := os.DirFS(dir)
	files := http.FileServerFS(root)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if name == "" {
			name = "."
		}

		info, err := fs.Stat(root, name)
		if err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.writeInternalError(w, err)
			return
		}

		if _, err := fs.Stat(root, "index.html"); err != nil {
			writeNotFound(w, "Page introuvable")
			return
		}
		http.ServeFileFS(w, r, root, "index.html")
	})
}
