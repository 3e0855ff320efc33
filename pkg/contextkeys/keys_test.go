package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", GetRequestID(ctx))

	ctx = WithRequestID(ctx, "abc")
	assert.Equal(t, "abc", GetRequestID(ctx))

	// a value stored under a plain string key is not visible
	ctx = context.WithValue(context.Background(), "request_id", "other") //nolint:staticcheck
	assert.Equal(t, "", GetRequestID(ctx))
}
