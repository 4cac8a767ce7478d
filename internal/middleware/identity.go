// Package middleware carries the request-identity layer. Authentication
// itself happens upstream at the gateway; this service trusts the identity
// headers the gateway injects and only validates their shape.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/dealbridge/chat-service/internal/domain"
	"github.com/dealbridge/chat-service/pkg/response"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
	HeaderUserName = "X-User-Name"
)

const viewerKey = "viewer"

// RequireIdentity rejects requests without a complete, well-formed identity.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		viewer := domain.Viewer{
			ID:   c.GetHeader(HeaderUserID),
			Role: domain.Role(c.GetHeader(HeaderUserRole)),
			Name: c.GetHeader(HeaderUserName),
		}
		if viewer.ID == "" {
			response.Unauthorized(c, "missing user identity")
			c.Abort()
			return
		}
		if !viewer.Role.Valid() {
			response.Unauthorized(c, "unknown participant role")
			c.Abort()
			return
		}

		c.Set(viewerKey, viewer)
		c.Next()
	}
}

// GetViewer returns the identity attached by RequireIdentity.
func GetViewer(c *gin.Context) (domain.Viewer, bool) {
	value, ok := c.Get(viewerKey)
	if !ok {
		return domain.Viewer{}, false
	}
	viewer, ok := value.(domain.Viewer)
	return viewer, ok
}
