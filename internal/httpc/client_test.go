package httpc

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostSendsBody(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = r.Header.Get("Content-Type") + "|" + string(b)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp, err := Post(context.Background(), srv.URL, "text/plain", []byte("hello"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "text/plain|hello", got)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	body, err := Fetch(context.Background(), nil, srv.URL+"/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(body))

	_, err = Fetch(context.Background(), nil, srv.URL+"/missing")
	assert.ErrorContains(t, err, "404")
}
