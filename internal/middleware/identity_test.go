package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/dealbridge/chat-service/internal/domain"
)

func identityRouter(captured *domain.Viewer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/probe", RequireIdentity(), func(c *gin.Context) {
		viewer, _ := GetViewer(c)
		*captured = viewer
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequireIdentityAcceptsCompleteHeaders(t *testing.T) {
	var viewer domain.Viewer
	r := identityRouter(&viewer)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set(HeaderUserID, "f1")
	req.Header.Set(HeaderUserRole, "founder")
	req.Header.Set(HeaderUserName, "Alex Rivera")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	want := domain.Viewer{ID: "f1", Role: domain.RoleFounder, Name: "Alex Rivera"}
	if viewer != want {
		t.Fatalf("viewer = %+v, want %+v", viewer, want)
	}
}

func TestRequireIdentityRejectsBadIdentity(t *testing.T) {
	cases := []struct {
		name string
		id   string
		role string
	}{
		{"missing id", "", "founder"},
		{"missing role", "f1", ""},
		{"unknown role", "f1", "admin"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var viewer domain.Viewer
			r := identityRouter(&viewer)

			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			req.Header.Set(HeaderUserID, tc.id)
			req.Header.Set(HeaderUserRole, tc.role)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			if viewer.ID != "" {
				t.Fatal("handler ran despite rejected identity")
			}
		})
	}
}
