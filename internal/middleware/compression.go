package middleware

import (
	"compress/gzip"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Content types that are already compressed.
var incompressibleTypes = []string{
	"image/",
	"video/",
	"audio/",
	"application/zip",
	"application/gzip",
	"application/x-gzip",
}

// Compress gzips response bodies of at least minSize bytes for clients that
// accept it. The body is buffered until minSize is reached so short responses
// go out untouched with their headers intact.
func Compress(minSize int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !acceptsGzip(c.Request) || isUpgrade(c.Request) {
			c.Next()
			return
		}

		writer := &gzipWriter{ResponseWriter: c.Writer, minSize: minSize}
		c.Writer = writer
		defer writer.finish()

		c.Next()
	}
}

func acceptsGzip(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept-Encoding"), "gzip")
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") ||
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

type gzipWriter struct {
	gin.ResponseWriter
	minSize int

	buf     []byte
	gz      *gzip.Writer
	decided bool
}

func (w *gzipWriter) Write(data []byte) (int, error) {
	if w.decided {
		if w.gz != nil {
			return w.gz.Write(data)
		}
		return w.ResponseWriter.Write(data)
	}

	w.buf = append(w.buf, data...)
	if len(w.buf) >= w.minSize {
		if err := w.decide(); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (w *gzipWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *gzipWriter) Flush() {
	if !w.decided {
		_ = w.decide()
	}
	if w.gz != nil {
		_ = w.gz.Flush()
	}
	w.ResponseWriter.Flush()
}

// decide settles the encoding once the buffered body reaches minSize or the
// handler is done, then drains the buffer.
func (w *gzipWriter) decide() error {
	w.decided = true
	buf := w.buf
	w.buf = nil

	if len(buf) >= w.minSize && w.compressible() {
		header := w.Header()
		header.Set("Content-Encoding", "gzip")
		header.Add("Vary", "Accept-Encoding")
		header.Del("Content-Length")
		w.gz = gzip.NewWriter(w.ResponseWriter)
		_, err := w.gz.Write(buf)
		return err
	}

	if len(buf) == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(buf)
	return err
}

func (w *gzipWriter) compressible() bool {
	// Headers already on the wire cannot gain a Content-Encoding.
	if w.ResponseWriter.Written() {
		return false
	}
	header := w.Header()
	if header.Get("Content-Encoding") != "" {
		return false
	}
	contentType := header.Get("Content-Type")
	for _, skip := range incompressibleTypes {
		if strings.HasPrefix(contentType, skip) {
			return false
		}
	}
	return true
}

func (w *gzipWriter) finish() {
	if !w.decided {
		_ = w.decide()
	}
	if w.gz != nil {
		_ = w.gz.Close()
	}
}
