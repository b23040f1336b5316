package utils_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-chat/backend/pkg/utils"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestRespondOKWithData(t *testing.T) {
	rec := httptest.NewRecorder()
	utils.RespondOK(rec, "Rooms", []string{"a"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "ok", body["code"])
	assert.Equal(t, "Rooms", body["message"])
	assert.Equal(t, []any{"a"}, body["data"])
}

func TestRespondOKOmitsNilData(t *testing.T) {
	rec := httptest.NewRecorder()
	utils.RespondOK(rec, "Login", nil)

	body := decode(t, rec)
	assert.NotContains(t, body, "data")
}

func TestRespondErrorEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	utils.RespondError(rec, http.StatusConflict, utils.CodeDuplicateEntry, "taken")

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "DUPLICATE_ENTRY", body["code"])
	assert.Equal(t, "taken", body["message"])
}

func TestRespondUnauthorized(t *testing.T) {
	rec := httptest.NewRecorder()
	utils.RespondUnauthorized(rec)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, rec)["code"])
}

func TestRespondInternalErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	utils.RespondInternalError(rec, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password authentication")
}
