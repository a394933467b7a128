package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"not found", ErrNotFound, http.StatusNotFound, ""},
		{"wrapped duplicate", Wrap(ErrDuplicate, errors.New("code 1000 taken")), http.StatusConflict, "code 1000 taken"},
		{"validation via fmt", fmt.Errorf("%w: amount", ErrValidation), http.StatusBadRequest, "validation failed: amount"},
		{"conflict", Wrap(ErrConflict, errors.New("already posted")), http.StatusConflict, "already posted"},
		{"unprocessable", Wrap(ErrUnprocessable, errors.New("no period")), http.StatusUnprocessableEntity, "no period"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)
			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			var problem ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			require.Equal(t, tc.status, problem.Status)
			require.Equal(t, tc.detail, problem.Detail)
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("cause")
	err := Wrap(ErrConflict, cause)
	require.ErrorIs(t, err, ErrConflict)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "cause", err.Error())
	require.NoError(t, Wrap(ErrConflict, nil))
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a","extra":1}`))
	err := DecodeJSON(req, &target)
	require.ErrorIs(t, err, ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a"}`))
	require.NoError(t, DecodeJSON(req, &target))
	require.Equal(t, "a", target.Name)
}

func TestValidationProblemListsFields(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationProblem(rec, map[string]string{"code": "required"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.JSONEq(t, `{"title":"Validation Failed","status":400,"errors":{"code":"required"}}`, rec.Body.String())
}
