package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchUsesETagAndCache(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch int(status.Load()) {
		case http.StatusOK:
			if r.Header.Get("If-None-Match") == `"v1"` {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("ETag", `"v1"`)
			_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
		default:
			w.WriteHeader(int(status.Load()))
		}
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Second)
	src := Source{ID: "promoter", URL: srv.URL + "/feed.ics?token=secret"}
	ctx := context.Background()

	first, err := f.Fetch(ctx, src)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.NotEmpty(t, first.Body)

	second, err := f.Fetch(ctx, src)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)

	status.Store(http.StatusBadGateway)
	third, err := f.Fetch(ctx, src)
	require.NoError(t, err)
	assert.True(t, third.FromCache)
	assert.Equal(t, first.Body, third.Body)
}

func TestFetchAllReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Second)
	results, errs := f.FetchAll(context.Background(), []Source{
		{ID: "broken", URL: srv.URL},
		{ID: "empty"},
	})
	assert.Empty(t, results)
	assert.Len(t, errs, 2)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://cal.example.com/...(redacted)", redactURL("https://cal.example.com/private/abc.ics?token=1"))
	assert.Equal(t, "https://cal.example.com/...(redacted)", redactURL("https://cal.example.com"))
	assert.Equal(t, "ics://...(redacted)", redactURL("not a url"))
}
