package api

import (
	"context"
	"io"
	"testing"

	"hotelledger/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestAuthInterceptor(t *testing.T) {
	cfg := config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "valid-key", Extra: "valid-extra", Permissions: []string{PermReadLedger}},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 100, Burst: 200},
	}

	interceptor := NewAuthInterceptor(&cfg).Unary()
	handler := func(_ context.Context, _ any) (any, error) {
		return "ok", nil
	}
	read := &grpc.UnaryServerInfo{FullMethod: "/" + LedgerServiceName + "/GetBill"}
	write := &grpc.UnaryServerInfo{FullMethod: "/" + LedgerServiceName + "/CreateBooking"}
	valid := metadata.Pairs("x-api-key", "valid-key", "x-api-extra", "valid-extra")

	t.Run("Success", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), valid)
		resp, err := interceptor(ctx, "req", read, handler)
		assert.NoError(t, err)
		assert.Equal(t, "ok", resp)
	})

	t.Run("MissingMetadata", func(t *testing.T) {
		_, err := interceptor(context.Background(), "req", read, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("MissingHeaders", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs())
		_, err := interceptor(ctx, "req", read, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidKey", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "nope", "x-api-extra", "valid-extra"))
		_, err := interceptor(ctx, "req", read, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("InvalidExtra", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "valid-key", "x-api-extra", "nope"))
		_, err := interceptor(ctx, "req", read, handler)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("PermissionDenied", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), valid)
		_, err := interceptor(ctx, "req", write, handler)
		assert.Equal(t, codes.PermissionDenied, status.Code(err))
	})
}

func TestAuthInterceptor_Disabled(t *testing.T) {
	cfg := config.APIConfig{}
	interceptor := NewAuthInterceptor(&cfg).Unary()

	resp, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/x/y"},
		func(_ context.Context, _ any) (any, error) { return "ok", nil })
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestAuthInterceptor_RateLimit(t *testing.T) {
	cfg := config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1}}
	interceptor := NewAuthInterceptor(&cfg).Unary()
	handler := func(_ context.Context, _ any) (any, error) { return "ok", nil }
	info := &grpc.UnaryServerInfo{FullMethod: "/" + LedgerServiceName + "/FindAvailable"}

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "client-a"))
	_, err := interceptor(ctx, "req", info, handler)
	assert.NoError(t, err)

	_, err = interceptor(ctx, "req", info, handler)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	// другой ключ получает свой лимит
	other := metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-api-key", "client-b"))
	_, err = interceptor(other, "req", info, handler)
	assert.NoError(t, err)
}

func TestLoggingUnaryInterceptor(t *testing.T) {
	logger := zerolog.New(io.Discard)
	interceptor := LoggingUnaryInterceptor(&logger)
	info := &grpc.UnaryServerInfo{FullMethod: "/" + LedgerServiceName + "/GetBill"}

	resp, err := interceptor(context.Background(), "req", info, func(_ context.Context, _ any) (any, error) {
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp)

	_, err = interceptor(context.Background(), "req", info, func(_ context.Context, _ any) (any, error) {
		return nil, status.Error(codes.Internal, "boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestRequestIDFromMetadata(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(requestIDKey, "abc"))
	assert.Equal(t, "abc", requestIDFromMetadata(ctx))
	assert.NotEmpty(t, requestIDFromMetadata(context.Background()))
}

func TestRequiredPermission(t *testing.T) {
	tests := map[string]string{
		"FindAvailable": PermReadLedger,
		"GetBill":       PermReadLedger,
		"CreateBooking": PermWriteBookings,
		"CancelBooking": PermWriteBookings,
		"Checkout":      PermWriteBookings,
		"AddExtra":      PermWriteBookings,
		"AddItem":       PermWriteInventory,
		"PlaceOrder":    PermWriteInventory,
		"ReceiveOrder":  PermWriteInventory,
		"DeleteItem":    PermWriteInventory,
		"Unknown":       "",
	}
	for method, want := range tests {
		assert.Equal(t, want, requiredPermission("/"+LedgerServiceName+"/"+method), method)
	}
}

func TestPermitted(t *testing.T) {
	all := &config.APIClientKey{Key: "k"}
	assert.True(t, permitted(all, PermWriteInventory))

	limited := &config.APIClientKey{Key: "k", Permissions: []string{" read:ledger "}}
	assert.True(t, permitted(limited, PermReadLedger))
	assert.False(t, permitted(limited, PermWriteBookings))
	assert.True(t, permitted(limited, ""))
}
