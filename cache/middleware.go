package cache

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
)

const jsonContentType = "application/json; charset=utf-8"

type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// PostMiddleware caches public post pages (routes with an :id param).
func PostMiddleware(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only cache GET requests
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Param("id")
		if key == "" {
			c.Next()
			return
		}
		variant := c.Request.URL.RequestURI()

		if cached, found := store.ReadCache(postsSection, key, variant); found {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, jsonContentType, cached)
			c.Abort()
			return
		}

		c.Header("X-Cache", "MISS")

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
		}
		c.Writer = writer

		c.Next()

		// Only cache successful JSON responses
		if c.Writer.Status() == http.StatusOK &&
			c.Writer.Header().Get("Content-Type") == jsonContentType {
			store.WriteCache(postsSection, key, variant, writer.body.Bytes())
		}
	}
}
