package metricsapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/liveops/internal/core/domain"
	apperrors "github.com/lorrc/liveops/internal/core/errors"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

func newTestClient(url string) *Client {
	return NewClient(url, time.Second, staticToken("tok"), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestClient_FetchView(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dashboard/calls", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"activeCalls":3}`))
	}))
	defer srv.Close()

	body, err := newTestClient(srv.URL).FetchView(context.Background(), domain.ViewCalls)
	require.NoError(t, err)
	assert.JSONEq(t, `{"activeCalls":3}`, string(body))
}

func TestClient_FetchViewErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, want: apperrors.ErrUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, want: apperrors.ErrForbidden},
		{name: "server error", status: http.StatusBadGateway},
		{name: "invalid body", status: http.StatusOK, body: "<html>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).FetchView(context.Background(), domain.ViewOverview)
			require.Error(t, err)
			if tt.want != nil {
				assert.True(t, errors.Is(err, tt.want))
			}
		})
	}
}

func TestClient_FetchViewRejectsUnknownView(t *testing.T) {
	_, err := newTestClient("http://127.0.0.1:1").FetchView(context.Background(), domain.DashboardView("bogus"))
	assert.ErrorIs(t, err, apperrors.ErrUnknownView)
}
