package platformerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsErrorKeepsWrappedType(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	inner := NewError(ctx, LayerRepository, ErrorTypeNotFound, "conversation not found", nil, "fixed-uuid")

	wrapped := AsError(ctx, LayerDomain, fmt.Errorf("load: %w", inner), "load conversation")
	require.NotNil(t, wrapped)
	assert.Equal(t, ErrorTypeNotFound, wrapped.Type)
	assert.Equal(t, "fixed-uuid", wrapped.UUID)
	assert.Equal(t, "req-1", wrapped.RequestID)
	assert.True(t, IsErrorType(wrapped, ErrorTypeNotFound))
}

func TestAsErrorClassifiesPlainErrors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"plain", errors.New("boom"), ErrorTypeInternal},
		{"deadline", context.DeadlineExceeded, ErrorTypeTimeout},
		{"canceled", fmt.Errorf("stream: %w", context.Canceled), ErrorTypeExternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AsError(ctx, LayerInfrastructure, tt.err, "op")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Type)
			assert.NotEmpty(t, got.UUID)
		})
	}
	assert.Nil(t, AsError(ctx, LayerDomain, nil, "noop"))
}

func TestErrorTypeToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, ErrorTypeToHTTPStatus(ErrorTypeNotFound))
	assert.Equal(t, http.StatusBadRequest, ErrorTypeToHTTPStatus(ErrorTypeValidation))
	assert.Equal(t, http.StatusBadGateway, ErrorTypeToHTTPStatus(ErrorTypeExternal))
	assert.Equal(t, http.StatusGone, ErrorTypeToHTTPStatus(ErrorTypeGone))
	assert.Equal(t, http.StatusInternalServerError, ErrorTypeToHTTPStatus(ErrorType("unknown")))
}
