package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindDefaults(t *testing.T) {
	tests := []struct {
		kind   Kind
		code   string
		status int
	}{
		{NotFound, CodeNotFound, http.StatusNotFound},
		{InvalidRequest, CodeInvalidRequest, http.StatusBadRequest},
		{ServiceUnavailable, CodeServiceUnavailable, http.StatusServiceUnavailable},
		{Internal, CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.code, tt.kind.DefaultCode())
			assert.Equal(t, tt.status, tt.kind.HTTPStatus())
		})
	}
}

func TestKindOf_walksWrappedChain(t *testing.T) {
	base := NotFoundf("image %s not found", "abc")
	wrapped := fmt.Errorf("get image: %w", base)

	assert.Equal(t, NotFound, KindOf(wrapped))
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
	assert.True(t, Is(wrapped, NotFound))
	assert.False(t, Is(wrapped, InvalidRequest))
}

func TestKindOf_unclassifiedIsInternal(t *testing.T) {
	err := errors.New("disk on fire")
	assert.Equal(t, Internal, KindOf(err))
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.False(t, Is(nil, Internal))
}

func TestSubCodeKeepsCategory(t *testing.T) {
	err := NotFoundf("no title vector").WithCode(CodeNoVector)
	assert.Equal(t, NotFound, KindOf(err))
	assert.Equal(t, CodeNoVector, CodeOf(err))
	assert.Equal(t, http.StatusNotFound, err.Kind.HTTPStatus())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(ServiceUnavailable, nil, "embedder"))

	cause := errors.New("connection refused")
	err := Wrap(ServiceUnavailable, cause, "embedder down")
	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "embedder down: connection refused", err.Error())
	assert.Equal(t, ServiceUnavailable, KindOf(err))
}

func TestWithDetail(t *testing.T) {
	err := Invalidf("bad weight").WithDetail("field", "image")
	assert.Equal(t, "image", err.Details["field"])
}
