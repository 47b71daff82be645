package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sojourn-loans/sojourn/internal/shared"
)

func TestLoginStoresTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		_ = json.NewEncoder(w).Encode(LoginResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			Role:         "ADMIN",
			Name:         "Ama",
		})
	}))
	defer srv.Close()

	store := &MemoryTokenStore{}
	client := New(srv.URL, store)

	resp, err := client.Login(context.Background(), "0241234567", "pw")
	require.NoError(t, err)
	require.Equal(t, "ADMIN", resp.Role)

	tokens, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "access-1", tokens.AccessToken)
	require.Equal(t, "refresh-1", tokens.RefreshToken)
}

func TestRetryAfterRefresh(t *testing.T) {
	var refreshCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			refreshCalls.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"accessToken":  "access-2",
				"refreshToken": "refresh-2",
			})
		case "/admin/borrowers":
			if r.Header.Get("Authorization") != "Bearer access-2" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"totalElements": 3})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	store := &MemoryTokenStore{}
	require.NoError(t, store.Save(Tokens{AccessToken: "stale", RefreshToken: "refresh-1"}))
	client := New(srv.URL, store)

	var out map[string]any
	require.NoError(t, client.Get(context.Background(), "/admin/borrowers", nil, &out))
	require.EqualValues(t, 3, out["totalElements"])
	require.EqualValues(t, 1, refreshCalls.Load())

	tokens, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "refresh-2", tokens.RefreshToken)
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	var refreshCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			refreshCalls.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"accessToken":  "fresh",
				"refreshToken": fmt.Sprintf("rot-%d", refreshCalls.Load()),
			})
		default:
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
		}
	}))
	defer srv.Close()

	store := &MemoryTokenStore{}
	require.NoError(t, store.Save(Tokens{AccessToken: "stale", RefreshToken: "refresh-1"}))
	client := New(srv.URL, store)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			var out map[string]string
			errs[idx] = client.Get(context.Background(), fmt.Sprintf("/admin/borrowers/%d", idx), nil, &out)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, 1, refreshCalls.Load())
}

func TestFailedRefreshClearsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := &MemoryTokenStore{}
	require.NoError(t, store.Save(Tokens{AccessToken: "stale", RefreshToken: "dead"}))
	client := New(srv.URL, store)

	var out map[string]any
	err := client.Get(context.Background(), "/admin/borrowers", nil, &out)
	require.ErrorIs(t, err, shared.ErrTokenExpired)

	tokens, lerr := store.Load()
	require.NoError(t, lerr)
	require.Empty(t, tokens.AccessToken)
	require.Empty(t, tokens.RefreshToken)
}

func TestAPIErrorCarriesProblemDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"title":  "Conflict",
			"detail": "phone number already registered",
		})
	}))
	defer srv.Close()

	client := New(srv.URL, &MemoryTokenStore{})
	err := client.Post(context.Background(), "/auth/login", map[string]string{}, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.StatusCode)
	require.Contains(t, apiErr.Detail, "already registered")
}

func TestFileTokenStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	store := NewFileTokenStore(path)

	// Missing file reads as empty, not an error.
	tokens, err := store.Load()
	require.NoError(t, err)
	require.Empty(t, tokens.AccessToken)

	require.NoError(t, store.Save(Tokens{AccessToken: "a", RefreshToken: "r"}))
	tokens, err = store.Load()
	require.NoError(t, err)
	require.Equal(t, "a", tokens.AccessToken)
	require.Equal(t, "r", tokens.RefreshToken)

	require.NoError(t, store.Clear())
	tokens, err = store.Load()
	require.NoError(t, err)
	require.Empty(t, tokens.RefreshToken)
	require.NoError(t, store.Clear())
}
