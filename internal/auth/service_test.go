package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestValidateToken(t *testing.T) {
	svc := NewService("s3cret", nil)
	if err := svc.ValidateToken("s3cret"); err != nil {
		t.Fatalf("ValidateToken error: %v", err)
	}
	if err := svc.ValidateToken("nope"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if err := svc.ValidateToken(""); err != ErrTokenRequired {
		t.Fatalf("expected ErrTokenRequired, got %v", err)
	}
	if err := NewService("", nil).ValidateToken(""); err != nil {
		t.Fatalf("disabled auth should accept anything: %v", err)
	}
}

func TestOriginAllowed(t *testing.T) {
	svc := NewService("", []string{"https://LocalPDF.online/", "http://localhost:5173"})
	cases := map[string]bool{
		"":                             true,
		"https://localpdf.online":      true,
		"http://localhost:5173":        true,
		"http://localhost:3000":        false,
		"https://localpdf.online.evil": false,
		"null":                         false,
	}
	for origin, want := range cases {
		if got := svc.OriginAllowed(origin); got != want {
			t.Fatalf("OriginAllowed(%q) = %v, want %v", origin, got, want)
		}
	}
	if !NewService("", []string{"*"}).OriginAllowed("https://anything.test") {
		t.Fatalf("wildcard should allow every origin")
	}
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}
	b, _ := GenerateToken()
	if len(a) != 64 || a == b {
		t.Fatalf("unexpected tokens %q %q", a, b)
	}
}

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(svc.OriginMiddleware(), svc.Middleware())
	router.GET("/open", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"trusted": Trusted(c)})
	})
	router.POST("/private", svc.RequireTrusted(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func serve(router *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	router := newTestRouter(NewService("s3cret", []string{"https://localpdf.online"}))

	if rec := serve(router, http.MethodGet, "/open", nil); rec.Code != http.StatusOK {
		t.Fatalf("untrusted read should pass, got %d", rec.Code)
	}
	if rec := serve(router, http.MethodPost, "/private", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := serve(router, http.MethodPost, "/private", map[string]string{"Authorization": "Bearer wrong"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
	if rec := serve(router, http.MethodPost, "/private", map[string]string{"Authorization": "Bearer s3cret"}); rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 with token, got %d", rec.Code)
	}
	if rec := serve(router, http.MethodGet, "/open", map[string]string{"Origin": "https://evil.test"}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign origin, got %d", rec.Code)
	}
	rec := serve(router, http.MethodOptions, "/open", map[string]string{"Origin": "https://localpdf.online"})
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://localpdf.online" {
		t.Fatalf("unexpected preflight answer %d %v", rec.Code, rec.Header())
	}
}
