package middleware

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// StaticFileServer serves reward images without directory listings.
func StaticFileServer(root string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") || r.URL.Path == "" {
			http.NotFound(w, r)
			return
		}

		path := filepath.Join(root, filepath.Clean("/"+r.URL.Path))
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, path)
	})
}
