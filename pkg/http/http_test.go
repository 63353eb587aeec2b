package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createReq struct {
	User     string  `json:"user" default:"default" validate:"required"`
	MinPrice float64 `json:"minPrice" validate:"gte=0"`
	MaxPrice float64 `json:"maxPrice" validate:"gt=0"`
	Kind     string  `json:"kind" validate:"omitempty,oneof=email sms"`
}

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var out APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestReadAndValidateRequest(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/", `{"minPrice": 10, "maxPrice": 20}`)
	var req createReq
	assert.Nil(t, ReadAndValidateRequest(c, &req))
	assert.Equal(t, "default", req.User)

	c, _ = newContext(http.MethodPost, "/", `{"minPrice": -1, "maxPrice": 0, "kind": "fax"}`)
	req = createReq{}
	errs, ok := ReadAndValidateRequest(c, &req).([]ValidationError)
	require.True(t, ok)
	require.Len(t, errs, 3)

	fields := map[string]string{}
	for _, e := range errs {
		fields[e.Field] = e.Code
	}
	assert.Equal(t, "ERR_GTE", fields["minPrice"])
	assert.Equal(t, "ERR_GT", fields["maxPrice"])
	assert.Equal(t, "ERR_ONEOF", fields["kind"])
}

func TestReadAndValidateRequest_BadJSON(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/", `{"minPrice": "x"`)
	var req createReq
	errs, ok := ReadAndValidateRequest(c, &req).([]ValidationError)
	require.True(t, ok)
	assert.Equal(t, "ERR_BIND", errs[0].Code)
}

func TestResponses(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/", "")
	require.NoError(t, SuccessResponse(c, map[string]int{"n": 1}))
	assert.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, 200, out.Status)
	assert.Equal(t, "OK", out.Message)

	c, rec = newContext(http.MethodGet, "/", "")
	require.NoError(t, AppErrorResponse(c, NotFoundErrorf("property %s not found", "p9")))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")
	assert.Contains(t, rec.Body.String(), "property p9 not found")

	c, rec = newContext(http.MethodGet, "/", "")
	require.NoError(t, AppErrorResponse(c, errors.New("boom")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	err := InternalError("failed").WithError(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed: cause", err.Error())
}
