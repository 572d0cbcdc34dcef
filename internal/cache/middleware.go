package cache

import (
	"bytes"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

const HeaderCache = "X-Cache"

// Middleware serves GET requests from c. Only 200 responses are stored;
// errors and empty results from failed lookups are never cached.
func (c *ResponseCache) Middleware(ttl ...time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := RequestKey(r)
			if cached, ok := c.Get(key); ok {
				header := w.Header()
				for name, values := range cached.Header {
					header[name] = append([]string(nil), values...)
				}
				header.Set(HeaderCache, "HIT")
				w.WriteHeader(cached.Status)
				_, _ = w.Write(cached.Body)
				return
			}

			w.Header().Set(HeaderCache, "MISS")
			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status != http.StatusOK {
				return
			}
			header := ww.Header().Clone()
			header.Del(HeaderCache)
			c.Set(key, Response{Status: status, Header: header, Body: body.Bytes()}, ttl...)
		})
	}
}
