package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

var errDomain = errors.New("domain: busy")

func TestRespondErrorUsesRulesFirst(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("wrap: %w", errDomain), Rule{errDomain, http.StatusConflict, "Busy"})

	require.Equal(t, http.StatusConflict, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var p ProblemDetail
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	require.Equal(t, "Busy", p.Title)
	require.Equal(t, "wrap: domain: busy", p.Detail)
}

func TestRespondErrorHidesUnmapped(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("pq: password authentication failed"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "password")
}

func TestRespondErrorUnavailableSetsRetryAfter(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, ErrUnavailable)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "30", rr.Header().Get("Retry-After"))
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Code string `json:"code"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"A","extra":1}`))
	err := DecodeJSON(req, &dst)
	require.ErrorIs(t, err, ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"A"}`))
	require.NoError(t, DecodeJSON(req, &dst))
	require.Equal(t, "A", dst.Code)
}

func TestPathAndQueryParsing(t *testing.T) {
	r := chi.NewRouter()
	var (
		id     int64
		idErr  error
		dayErr error
	)
	r.Get("/orgs/{org}", func(w http.ResponseWriter, req *http.Request) {
		id, idErr = PathInt64(req, "org")
		_, dayErr = QueryDate(req, "from")
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orgs/12?from=2024-03-01", nil))
	require.NoError(t, idErr)
	require.NoError(t, dayErr)
	require.Equal(t, int64(12), id)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orgs/x?from=03-01-2024", nil))
	require.True(t, IsValidation(idErr))
	require.True(t, IsValidation(dayErr))
}
