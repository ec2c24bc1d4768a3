package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/missionz/internal/mission"
)

func TestHTTPGenerator_Success(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/missions/generate", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{
			Success:  true,
			Missions: []mission.Mission{{ID: "m1", MissionDate: day, Status: mission.StatusPending}},
		})
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL+"/", "secret", srv.Client())
	resp, err := g.Generate(context.Background(), Request{UserID: "u1", LocalDate: day})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	require.Len(t, resp.All(), 1)
	assert.Equal(t, day, resp.All()[0].MissionDate)
	assert.Equal(t, Request{UserID: "u1", LocalDate: day}, got)
}

func TestHTTPGenerator_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		header map[string]string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "429 with retry-after",
			status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "30"},
			check: func(t *testing.T, err error) {
				var e *RateLimitedError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, 30*time.Second, e.RetryAfter)
			},
		},
		{
			name:   "402",
			status: http.StatusPaymentRequired,
			body:   `{"success":false,"error":"payment required"}`,
			check: func(t *testing.T, err error) {
				var e *QuotaExhaustedError
				assert.True(t, errors.As(err, &e))
			},
		},
		{
			name:   "max missions in body",
			status: http.StatusConflict,
			body:   `{"success":false,"error":"max missions reached"}`,
			check: func(t *testing.T, err error) {
				var e *MaxMissionsError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, day, e.Date)
			},
		},
		{
			name:   "504",
			status: http.StatusGatewayTimeout,
			check: func(t *testing.T, err error) {
				var e *TimeoutError
				assert.True(t, errors.As(err, &e))
			},
		},
		{
			name:   "500 plain text",
			status: http.StatusInternalServerError,
			body:   "database down",
			check: func(t *testing.T, err error) {
				var e *ServiceError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, http.StatusInternalServerError, e.Status)
				assert.Equal(t, "database down", e.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g := NewHTTPGenerator(srv.URL, "", srv.Client())
			_, err := g.Generate(context.Background(), Request{UserID: "u1", LocalDate: day})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestHTTPGenerator_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL, "", nil)
	_, err := g.Generate(context.Background(), Request{UserID: "u1", LocalDate: day})
	var e *ServiceError
	require.True(t, errors.As(err, &e))
	assert.Equal(t, "malformed response", e.Message)
}
