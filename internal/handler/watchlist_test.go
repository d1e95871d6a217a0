package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenlens/internal/models"
	"tokenlens/internal/repository"
)

type fakeWatchlist struct {
	entries []models.WatchedWallet
}

func (f *fakeWatchlist) Add(ctx context.Context, wallet models.WatchedWallet) error {
	for _, e := range f.entries {
		if e.Address == strings.ToLower(wallet.Address) && e.Token == wallet.Token {
			return repository.ErrAlreadyWatched
		}
	}
	wallet.Address = strings.ToLower(wallet.Address)
	f.entries = append(f.entries, wallet)
	return nil
}

func (f *fakeWatchlist) Remove(ctx context.Context, address, token string) (bool, error) {
	for i, e := range f.entries {
		if e.Address == strings.ToLower(address) && e.Token == token {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeWatchlist) List(ctx context.Context) ([]models.WatchedWallet, error) {
	return f.entries, nil
}

func (f *fakeWatchlist) Close(ctx context.Context) error { return nil }

func newWatchlistRouter(wl repository.Watchlist) *gin.Engine {
	h := NewWatchlistHandler(wl, testLogger())
	router := gin.New()
	router.GET("/api/v1/watchlist", h.List)
	router.POST("/api/v1/watchlist", h.Add)
	router.DELETE("/api/v1/watchlist", h.Remove)
	return router
}

func TestWatchlistAddAndList(t *testing.T) {
	router := newWatchlistRouter(&fakeWatchlist{})

	w := httptest.NewRecorder()
	body := strings.NewReader(`{"address": "0xAbC", "token": "0xtoken", "label": "whale"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/watchlist", body)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/watchlist", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)
	assert.Contains(t, w.Body.String(), `"0xabc"`)
}

func TestWatchlistAddDuplicateConflicts(t *testing.T) {
	wl := &fakeWatchlist{}
	router := newWatchlistRouter(wl)

	for _, wantStatus := range []int{http.StatusCreated, http.StatusConflict} {
		w := httptest.NewRecorder()
		body := strings.NewReader(`{"address": "0xabc", "token": "0xtoken"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/watchlist", body)
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		assert.Equal(t, wantStatus, w.Code)
	}
	assert.Len(t, wl.entries, 1)
}

func TestWatchlistAddRequiresFields(t *testing.T) {
	router := newWatchlistRouter(&fakeWatchlist{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/watchlist", strings.NewReader(`{"address": "0xabc"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWatchlistRemove(t *testing.T) {
	wl := &fakeWatchlist{entries: []models.WatchedWallet{{Address: "0xabc", Token: "0xtoken"}}}
	router := newWatchlistRouter(wl)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/watchlist?address=0xabc&token=0xtoken", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, wl.entries)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/api/v1/watchlist?address=0xabc&token=0xtoken", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
