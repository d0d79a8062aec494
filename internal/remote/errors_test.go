package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapErrorStatusCodes(t *testing.T) {
	tests := []struct {
		code int
		kind Kind
	}{
		{401, KindAuthentication},
		{403, KindAuthentication},
		{400, KindValidation},
		{422, KindValidation},
		{500, KindServer},
		{503, KindServer},
		{418, KindUnknown},
	}

	for _, tt := range tests {
		mapped := MapError(&StatusError{Code: tt.code, Status: "status"})
		assert.Equal(t, tt.kind, mapped.Kind, "status %d", tt.code)
	}
}

func TestMapErrorWrappedStatus(t *testing.T) {
	err := fmt.Errorf("upsert failed: %w", &StatusError{Code: 401, Status: "Unauthorized"})
	assert.Equal(t, KindAuthentication, MapError(err).Kind)
}

func TestMapErrorNetwork(t *testing.T) {
	var netErr net.Error = &net.DNSError{Err: "no such host", IsTimeout: false}
	assert.Equal(t, KindNetwork, MapError(netErr).Kind)

	urlErr := &url.Error{Op: "Post", URL: "http://backend", Err: errors.New("connection refused")}
	assert.Equal(t, KindNetwork, MapError(urlErr).Kind)

	assert.Equal(t, KindNetwork, MapError(context.DeadlineExceeded).Kind)
}

func TestMapErrorPassesThroughMapped(t *testing.T) {
	original := NewValidationError("bad username")
	assert.Same(t, original, MapError(original))

	wrapped := fmt.Errorf("outer: %w", original)
	assert.Same(t, original, MapError(wrapped))
}

func TestMapErrorUnknownFallback(t *testing.T) {
	mapped := MapError(errors.New("weird"))
	assert.Equal(t, KindUnknown, mapped.Kind)
	assert.Equal(t, "weird", mapped.Message)
}

func TestMapErrorNil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestIsKindHelpers(t *testing.T) {
	err := NewValidationError("nope")
	assert.True(t, IsValidation(err))
	assert.True(t, IsKind(err, KindValidation))
	assert.False(t, IsKind(err, KindNetwork))
	assert.False(t, IsValidation(errors.New("raw")))
}
