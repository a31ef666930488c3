package server

import (
	"io/fs"
	"net/http"
	"os"
	"strings"
)

// spaHandler serves the built frontend from dir with SPA fallback: any
// path that doesn't match a file serves index.html. Without an
// index.html every path answers with a JSON hint.
func spaHandler(dir string) http.Handler {
	root := os.DirFS(dir)
	fileServer := http.FileServer(http.FS(root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := fs.Stat(root, "index.html"); err != nil {
			w.Header().Set("Content-Type", "application/json")
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error":   "Frontend not built yet",
				"message": "Run 'npm run build' to build the React frontend first",
			})
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/")
		if path != "" {
			if st, err := fs.Stat(root, path); err == nil && !st.IsDir() {
				fileServer.ServeHTTP(w, r)
				return
			}
		}

		// SPA fallback: serve index.html for non-file paths
		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}
