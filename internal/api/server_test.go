package api

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"hotelledger/internal/config"
	"hotelledger/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestGRPCServer_New(t *testing.T) {
	logger := zerolog.New(io.Discard)
	db := newTestDB(t)
	cfg := openAPIConfig()
	cfg.GRPC.Port = 9091

	s, err := NewGRPCServer(cfg, newTestServices(db), &logger)
	require.NoError(t, err)
	assert.Equal(t, ":9091", s.Addr())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s.Shutdown(ctx)
}

func TestGRPCServer_TLSMisconfigured(t *testing.T) {
	logger := zerolog.New(io.Discard)
	cfg := openAPIConfig()
	cfg.GRPC.TLS = config.APITLSConfig{Enabled: true}

	_, err := NewGRPCServer(cfg, newTestServices(newTestDB(t)), &logger)
	assert.Error(t, err)
}

func TestGRPCServer_Serve(t *testing.T) {
	logger := zerolog.New(io.Discard)
	s, err := NewGRPCServer(openAPIConfig(), newTestServices(newTestDB(t)), &logger)
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(lis) }()
	time.Sleep(20 * time.Millisecond)

	s.Shutdown(context.Background())
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("grpc server did not stop")
	}
}

func TestBuildTLSConfig(t *testing.T) {
	t.Run("EmptyPaths", func(t *testing.T) {
		_, err := buildTLSConfig(config.APITLSConfig{Enabled: true})
		assert.Error(t, err)
	})

	t.Run("InvalidCert", func(t *testing.T) {
		_, err := buildTLSConfig(config.APITLSConfig{
			Enabled:  true,
			CertFile: "/nonexistent",
			KeyFile:  "/nonexistent",
		})
		assert.Error(t, err)
	})
}

func TestChainUnaryInterceptors(t *testing.T) {
	var order []string
	mk := func(name string) grpc.UnaryServerInterceptor {
		return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			order = append(order, name)
			return handler(ctx, req)
		}
	}

	chain := ChainUnaryInterceptors(mk("first"), mk("second"))
	resp, err := chain(context.Background(), "req", &grpc.UnaryServerInfo{}, func(_ context.Context, req any) (any, error) {
		order = append(order, "handler")
		return req, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "req", resp)
	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	logger := zerolog.New(io.Discard)
	interceptor := RecoveryUnaryInterceptor(&logger)

	_, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/x/Panic"},
		func(_ context.Context, _ any) (any, error) { panic("boom") })
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		httpCode int
		kind     string
		grpcCode codes.Code
	}{
		{models.ErrValidation, http.StatusBadRequest, "validation", codes.InvalidArgument},
		{models.ErrNotFound, http.StatusNotFound, "not_found", codes.NotFound},
		{models.ErrConflict, http.StatusConflict, "conflict", codes.Aborted},
		{models.ErrAlreadyTerminal, http.StatusConflict, "already_terminal", codes.FailedPrecondition},
		{models.ErrAlreadyCompleted, http.StatusConflict, "already_completed", codes.FailedPrecondition},
		{models.ErrHasPendingOrders, http.StatusConflict, "has_pending_orders", codes.FailedPrecondition},
		{errors.New("disk full"), http.StatusInternalServerError, "internal", codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			wrapped := errors.Join(errors.New("context"), tt.err)
			assert.Equal(t, tt.httpCode, httpStatus(wrapped))
			assert.Equal(t, tt.kind, errorKind(wrapped))
			assert.Equal(t, tt.grpcCode, status.Code(grpcError(wrapped)))
		})
	}
	assert.NoError(t, grpcError(nil))
	assert.Equal(t, "internal error", status.Convert(grpcError(errors.New("secret path"))).Message())
}
