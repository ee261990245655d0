package cluster

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_Call(t *testing.T) {
	var tokenRequests atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenRequests.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	shim := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) == "boom" {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, "remote entrypoint crashed")
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write(body)
	}))
	defer shim.Close()

	tr, err := NewHTTPTransport(context.Background(), HTTPConfig{
		URL:          shim.URL,
		TokenURL:     tokenSrv.URL,
		ClientID:     "chemjobs",
		ClientSecret: "s3cret",
	})
	require.NoError(t, err)

	t.Run("bearer token and echo", func(t *testing.T) {
		out, err := tr.Call(context.Background(), []byte(`{"action":"clean"}`))
		require.NoError(t, err)
		assert.Equal(t, `{"action":"clean"}`, string(out))

		_, err = tr.Call(context.Background(), []byte(`{}`))
		require.NoError(t, err)
		assert.Equal(t, int32(1), tokenRequests.Load(), "token is cached")
	})

	t.Run("non-2xx is a transport failure", func(t *testing.T) {
		_, err := tr.Call(context.Background(), []byte("boom"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTransport)
		assert.Contains(t, err.Error(), "502")
		assert.Contains(t, err.Error(), "remote entrypoint crashed")
	})
}

func TestHTTPTransport_NoAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"status":"SUCCESS"}`)
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(context.Background(), HTTPConfig{URL: srv.URL})
	require.NoError(t, err)
	out, err := tr.Call(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"SUCCESS"}`, string(out))

	srv.Close()
	_, err = tr.Call(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrTransport)

	_, err = NewHTTPTransport(context.Background(), HTTPConfig{})
	assert.Error(t, err)
}
