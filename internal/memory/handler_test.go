package memory

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *Store) {
	t.Helper()
	s := newTestStore(t)
	h := NewHandler(s)

	r := chi.NewRouter()
	r.Get("/memories", h.List)
	r.Post("/memories", h.Create)
	r.Get("/memories/stats", h.Stats)
	r.Put("/memories/{memoryID}", h.Update)
	r.Delete("/memories/{memoryID}", h.Delete)
	r.Delete("/memories", h.DeleteAll)
	return r, s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CreateValidation(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"category":"user","text":"likes jazz"}`, http.StatusCreated},
		{"missing category", `{"text":"likes jazz"}`, http.StatusBadRequest},
		{"unknown category", `{"category":"pets","text":"x"}`, http.StatusBadRequest},
		{"too many words", `{"category":"user","text":"` + strings.Repeat("w ", 101) + `"}`, http.StatusBadRequest},
		{"malformed json", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/memories", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestHandler_Lifecycle(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/memories", `{"category":"self","text":"prefers short answers"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		Data Record `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Data.ID

	rec = do(t, h, http.MethodPut, "/memories/"+id, `{"text":"prefers concise answers"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "prefers concise answers")

	rec = do(t, h, http.MethodPut, "/memories/"+id, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/memories/unknown", `{"text":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/memories/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"self":1`)

	rec = do(t, h, http.MethodDelete, "/memories/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodDelete, "/memories/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_ = do(t, h, http.MethodPost, "/memories", `{"category":"user","text":"a"}`)
	rec = do(t, h, http.MethodDelete, "/memories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted_count":1`)

	rec = do(t, h, http.MethodGet, "/memories", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}
