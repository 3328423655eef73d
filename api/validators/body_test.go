package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type nestedBody struct {
	City string `json:"city" validate:"required"`
}

type sampleBody struct {
	Name    string     `json:"name" validate:"required,max=10"`
	Email   string     `json:"email" validate:"omitempty,email"`
	Address nestedBody `json:"address"`
}

func newRequest(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	var dest sampleBody
	err := DecodeJSONBody(newRequest(`{"name":"lamp","address":{"city":"Austin"}}`), &dest)
	require.NoError(t, err)
	require.Equal(t, "lamp", dest.Name)
	require.Equal(t, "Austin", dest.Address.City)
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	var dest sampleBody
	err := DecodeJSONBody(newRequest(`{"name":"lamp","address":{"city":"x"},"extra":true}`), &dest)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestDecodeJSONBodyRejectsEmptyBody(t *testing.T) {
	var dest sampleBody
	err := DecodeJSONBody(newRequest(""), &dest)
	require.Error(t, err)
	require.Contains(t, err.Error(), "request body is required")
}

func TestDecodeJSONBodyRejectsTrailingData(t *testing.T) {
	var dest sampleBody
	err := DecodeJSONBody(newRequest(`{"name":"a","address":{"city":"b"}}{"name":"c"}`), &dest)
	require.Error(t, err)
}

func TestDecodeJSONBodyReportsNestedFieldPaths(t *testing.T) {
	var dest sampleBody
	err := DecodeJSONBody(newRequest(`{"name":"a very long name","email":"nope","address":{}}`), &dest)
	require.Error(t, err)

	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	require.Equal(t, "must be at most 10", details["name"])
	require.Equal(t, "must be a valid email", details["email"])
	require.Equal(t, "is required", details["address.city"])
}
