package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopbackAddr(t *testing.T) {
	tests := map[string]string{
		"":                defaultAddr,
		"garbage":         defaultAddr,
		":9090":           "127.0.0.1:9090",
		"0.0.0.0:8080":    "127.0.0.1:8080",
		"[::]:8080":       "127.0.0.1:8080",
		"10.0.0.5:8080":   "10.0.0.5:8080",
		"localhost:18080": "localhost:18080",
	}
	for in, want := range tests {
		assert.Equal(t, want, loopbackAddr(in), in)
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"healthy", http.StatusOK, `{"status":"ok"}`, ""},
		{"server error", http.StatusInternalServerError, `{"error":"x"}`, "status 500"},
		{"degraded", http.StatusOK, `{"status":"starting"}`, `"starting"`},
		{"not json", http.StatusOK, `<html>`, "decode health response"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/health", r.URL.Path)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			err := probe(context.Background(), srv.Client(), strings.TrimPrefix(srv.URL, "http://"))
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
