package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("X-goog-api-key"))
		assert.Empty(t, r.URL.Query().Get("key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 2)
		assert.Equal(t, "hello", req.Contents[0].Parts[0].Text)
		assert.Equal(t, "image/png", req.Contents[0].Parts[1].InlineData.MimeType)

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Olá, leitor!"}]}}]}`))
	}))
	defer srv.Close()

	c := NewClient("key-123", "", srv.URL)
	text, err := c.GenerateContent(context.Background(), []Part{
		{Text: "hello"},
		{InlineData: &Blob{MimeType: "image/png", Data: "aGk="}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Olá, leitor!", text)
}

func TestGenerateContentNoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	text, err := NewClient("k", "", srv.URL).GenerateContent(context.Background(), []Part{{Text: "hi"}})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestGenerateContentAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", "", srv.URL).GenerateContent(context.Background(), []Part{{Text: "hi"}})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "API key not valid", apiErr.Message)
}

func TestGenerateContentRequiresKey(t *testing.T) {
	_, err := NewClient("", "", "http://127.0.0.1:1").GenerateContent(context.Background(), []Part{{Text: "hi"}})
	require.ErrorIs(t, err, ErrMissingAPIKey)
}
