package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/putrabttart/dropstore-backend/pkg/errors"
)

type testBody struct {
	Name  string `json:"name" validate:"required"`
	Count int    `json:"count" validate:"required,min=1,max=999"`
}

func decode(t *testing.T, body string) (testBody, error) {
	t.Helper()
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	var dest testBody
	err := DecodeJSONBody(req, &dest)
	return dest, err
}

func TestDecodeJSONBodyValid(t *testing.T) {
	t.Parallel()

	dest, err := decode(t, `{"name":"NFLX1M","count":3}`)
	require.NoError(t, err)
	assert.Equal(t, "NFLX1M", dest.Name)
	assert.Equal(t, 3, dest.Count)
}

func TestDecodeJSONBodyMalformed(t *testing.T) {
	t.Parallel()

	_, err := decode(t, `{not json`)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := decode(t, `{"name":"NFLX1M","count":1,"surprise":true}`)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyFieldDetailsUseJSONNames(t *testing.T) {
	t.Parallel()

	_, err := decode(t, `{"count":0}`)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	var appErr *pkgerrors.Error
	require.ErrorAs(t, err, &appErr)
	details, ok := appErr.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["name"])
	assert.Equal(t, "must be at least 1", details["count"])
}

func TestDecodeJSONBodyRangeBounds(t *testing.T) {
	t.Parallel()

	_, err := decode(t, `{"name":"NFLX1M","count":1000}`)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	var appErr *pkgerrors.Error
	require.ErrorAs(t, err, &appErr)
	details, ok := appErr.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be at most 999", details["count"])
}
