package shim

import (
	"net/http"
	"path"
	"strings"

	"github.com/andybalholm/brotli"
)

var compressible = map[string]bool{
	".wasm": true,
	".js":   true,
	".mjs":  true,
	".html": true,
	".css":  true,
	".json": true,
	".svg":  true,
}

func acceptsBrotli(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, q, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(strings.TrimSpace(enc), "br") {
			return strings.TrimSpace(q) != "q=0"
		}
	}
	return false
}

func wantsCompression(r *http.Request) bool {
	if r.Method != http.MethodGet || r.Header.Get("Range") != "" || !acceptsBrotli(r) {
		return false
	}
	ext := path.Ext(r.URL.Path)
	if ext == "" || strings.HasSuffix(r.URL.Path, "/") {
		ext = ".html"
	}
	return compressible[ext]
}

// Compress brotli-encodes text and wasm assets for clients that accept it.
func Compress(level int, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")
		if !wantsCompression(r) {
			next.ServeHTTP(w, r)
			return
		}

		bw := &brotliWriter{ResponseWriter: w, level: level}
		defer bw.Close()
		next.ServeHTTP(bw, r)
	})
}

// brotliWriter decides on the first WriteHeader whether to encode: only
// successful responses are compressed.
type brotliWriter struct {
	http.ResponseWriter
	level       int
	enc         *brotli.Writer
	wroteHeader bool
}

func (b *brotliWriter) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	b.wroteHeader = true

	h := b.Header()
	if code == http.StatusOK && h.Get("Content-Encoding") == "" {
		h.Del("Content-Length")
		h.Set("Content-Encoding", "br")
		b.enc = brotli.NewWriterLevel(b.ResponseWriter, b.level)
	}
	b.ResponseWriter.WriteHeader(code)
}

func (b *brotliWriter) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	if b.enc != nil {
		return b.enc.Write(p)
	}
	return b.ResponseWriter.Write(p)
}

func (b *brotliWriter) Close() error {
	if b.enc == nil {
		return nil
	}
	return b.enc.Close()
}

func (b *brotliWriter) Unwrap() http.ResponseWriter {
	return b.ResponseWriter
}
