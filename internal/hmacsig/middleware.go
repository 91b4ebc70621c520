package hmacsig

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GinContextConnectorIdKey is where the middleware stores the authenticated connector id.
const GinContextConnectorIdKey = "dsx-connect.connector-id"

// GinMiddleware authenticates the request with the verifier. On any failure the response
// is a bare 401 with no indication of which check failed. On success the authenticated
// connector id is stored on the gin context for handlers downstream.
func GinMiddleware(v *Verifier, logger *slog.Logger) gin.HandlerFunc {
	return func(gctx *gin.Context) {
		body, err := io.ReadAll(gctx.Request.Body)
		if err != nil {
			logger.Error("failed to read request body for authentication", "error", err)
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}

		// Restore the body for handlers downstream.
		gctx.Request.Body = io.NopCloser(bytes.NewReader(body))

		connectorId, err := v.Verify(
			gctx.Request.Context(),
			gctx.Request.Method,
			RequestURIOf(gctx.Request),
			gctx.GetHeader("Authorization"),
			body,
		)
		if err != nil {
			logger.Warn("request failed authentication",
				"method", gctx.Request.Method,
				"path", gctx.Request.URL.Path,
				"error", err)
			gctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
			return
		}

		gctx.Set(GinContextConnectorIdKey, connectorId)
		gctx.Next()
	}
}

// MustGetConnectorId returns the connector id the middleware authenticated. Panics if
// called from a handler that is not behind GinMiddleware.
func MustGetConnectorId(gctx *gin.Context) uuid.UUID {
	val, ok := gctx.Get(GinContextConnectorIdKey)
	if !ok {
		panic("connector id not present on gin context; handler is not behind hmac middleware")
	}

	return val.(uuid.UUID)
}
