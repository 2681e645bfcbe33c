package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderRequestID, "abc-123")
	if got := RequestID(r); got != "abc-123" {
		t.Errorf("RequestID = %q, want caller id", got)
	}

	for _, bad := range []string{"", "has spaces", "<script>"} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(HeaderRequestID, bad)
		got := RequestID(r)
		if got == bad || len(got) != 36 {
			t.Errorf("RequestID with header %q = %q, want fresh uuid", bad, got)
		}
	}
}

func TestMiddlewareReportsStatus(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    int
	}{
		{"implicit ok", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) }, http.StatusOK},
		{"explicit status", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusConflict) }, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotStatus int
			var gotIP string
			m := NewMiddleware(
				func(*http.Request) string { return "203.0.113.7" },
				func(_ context.Context, _ *http.Request, status int, _ int64, ip string) {
					gotStatus, gotIP = status, ip
				})
			m.Middleware(tt.handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
			if gotStatus != tt.want || gotIP != "203.0.113.7" {
				t.Errorf("completion got status=%d ip=%q", gotStatus, gotIP)
			}
		})
	}
}
