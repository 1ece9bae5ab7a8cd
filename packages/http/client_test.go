package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/caserun/packages/core/cases"
)

func TestClient_JSONBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "abc", r.Header.Get("X-Trace"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["username"])
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 123}`))
	}))
	defer server.Close()

	client := NewClient()
	resp, err := client.Do(context.Background(), &Request{
		CaseID:  "create",
		Method:  "post",
		URL:     server.URL + "/users",
		Headers: cases.Headers{{Key: "X-Trace", Value: "abc"}},
		Type:    cases.RequestJSON,
		Body:    map[string]any{"username": "alice"},
	})

	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	assert.True(t, resp.IsJSON())
	body, err := resp.JSON()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": json.Number("123")}, body)
}

func TestResponse_JSONKeepsIntegers(t *testing.T) {
	resp := &Response{Body: []byte(`{"id": 1234567890123456789, "price": 9.5}`)}
	body, err := resp.JSON()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": json.Number("1234567890123456789"), "price": json.Number("9.5")}, body)

	_, err = (&Response{Body: []byte(`{"a": 1} trailing`)}).JSON()
	assert.Error(t, err)

	body, err = (&Response{Body: []byte("  ")}).JSON()
	assert.NoError(t, err)
	assert.Nil(t, body)
}

func TestClient_FormBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "bob", r.PostForm.Get("name"))
		assert.Equal(t, "3", r.PostForm.Get("count"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := NewClient().Do(context.Background(), &Request{
		Method: "POST",
		URL:    server.URL,
		Type:   cases.RequestForm,
		Body:   map[string]any{"name": "bob", "count": float64(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestClient_ParamsType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, []string{"a", "b"}, r.URL.Query()["tag"])
		assert.Equal(t, "x", r.URL.Query().Get("q"))
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := NewClient().Do(context.Background(), &Request{
		Method: "GET",
		URL:    server.URL,
		Type:   cases.RequestParams,
		Params: cases.Params{{Key: "q", Value: "x"}},
		Body:   map[string]any{"page": float64(1), "tag": []any{"a", "b"}},
	})
	require.NoError(t, err)
}

func TestClient_FileUpload(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "avatar.txt"), []byte("pixels"), 0o644))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "42", r.FormValue("user_id"))
		f, hdr, err := r.FormFile("avatar")
		if assert.NoError(t, err) {
			defer f.Close()
			data, _ := io.ReadAll(f)
			assert.Equal(t, "pixels", string(data))
			assert.Equal(t, "avatar.txt", hdr.Filename)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := NewClient().Do(context.Background(), &Request{
		Method:  "POST",
		URL:     server.URL,
		Type:    cases.RequestFile,
		BaseDir: dir,
		Body: map[string]any{
			"file": map[string]any{"avatar": "avatar.txt"},
			"data": map[string]any{"user_id": float64(42)},
		},
	})
	require.NoError(t, err)
}

func TestClient_FileOutsideBaseDir(t *testing.T) {
	_, err := NewClient().Do(context.Background(), &Request{
		Method:  "POST",
		URL:     "http://127.0.0.1:1",
		Type:    cases.RequestFile,
		BaseDir: t.TempDir(),
		Body:    map[string]any{"file": map[string]any{"f": "../../etc/passwd"}},
	})
	require.Error(t, err)
	var dfe *cases.DataFormatError
	assert.ErrorAs(t, err, &dfe)
	assert.Contains(t, err.Error(), "path traversal")
}

func TestClient_NoneSendsNoBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Empty(t, body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	resp, err := NewClient().Do(context.Background(), &Request{
		Method: "DELETE",
		URL:    server.URL,
		Type:   cases.RequestNone,
		Body:   map[string]any{"ignored": true},
	})
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)
	body, err := resp.JSON()
	assert.NoError(t, err)
	assert.Nil(t, body)
}

func TestClient_ServerErrorIsAResponse(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	resp, err := NewClient().Do(context.Background(), &Request{Method: "GET", URL: server.URL, Type: cases.RequestNone})
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClient_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient().Do(context.Background(), &Request{CaseID: "login", Method: "GET", URL: url})
	require.Error(t, err)
	var ce *cases.ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "login", ce.CaseID)
	assert.Equal(t, "connection", cases.Kind(err))
}

func TestClient_WithTimeout(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(WithTimeout(50 * time.Millisecond))
	_, err := client.Do(context.Background(), &Request{Method: "GET", URL: server.URL})

	var ce *cases.ConnectionError
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClient_NoFollowRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp, err := NewClient(WithFollowRedirects(false)).Do(context.Background(), &Request{Method: "GET", URL: server.URL + "/old"})
	require.NoError(t, err)
	assert.Equal(t, 302, resp.StatusCode)
	assert.Equal(t, "/new", resp.Header("location"))

	resp, err = NewClient().Do(context.Background(), &Request{Method: "GET", URL: server.URL + "/old"})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestClient_InvalidURL(t *testing.T) {
	_, err := NewClient().Do(context.Background(), &Request{Method: "GET", URL: "ftp://example.com"})
	require.Error(t, err)
	assert.Equal(t, "data_format", cases.Kind(err))
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{float64(2), "2"},
		{1.5, "1.5"},
		{true, "true"},
		{map[string]any{"a": float64(1)}, `{"a":1}`},
		{[]any{"a"}, `["a"]`},
		{7, "7"},
		{int64(1234567890123456789), "1234567890123456789"},
		{json.Number("1234567890123456789"), "1234567890123456789"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.in))
	}
}

func TestValidateURL(t *testing.T) {
	assert.NoError(t, ValidateURL("https://api.example.com/v1"))
	assert.Error(t, ValidateURL("file:///etc/passwd"))
	assert.Error(t, ValidateURL("http://"))
}
