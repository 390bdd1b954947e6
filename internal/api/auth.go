package api

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"hotelledger/internal/config"
	"hotelledger/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	requestIDKey          = "x-request-id"
	clientKeyUnknown      = "unknown"

	PermReadLedger     = "read:ledger"
	PermWriteBookings  = "write:bookings"
	PermWriteInventory = "write:inventory"
	PermWriteRooms     = "write:rooms"
)

// clientKeys resolves API keys to configured clients. It is shared by the
// HTTP and gRPC transports.
type clientKeys struct {
	cfg     config.APIAuthConfig
	clients map[string]config.APIClientKey
}

func newClientKeys(cfg config.APIAuthConfig) *clientKeys {
	m := make(map[string]config.APIClientKey, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		m[k.Key] = k
	}
	return &clientKeys{cfg: cfg, clients: m}
}

func (c *clientKeys) apiKeyHeader() string {
	if h := strings.ToLower(strings.TrimSpace(c.cfg.HeaderAPIKey)); h != "" {
		return h
	}
	return apiKeyHeaderDefault
}

func (c *clientKeys) extraHeader() string {
	if h := strings.ToLower(strings.TrimSpace(c.cfg.HeaderExtra)); h != "" {
		return h
	}
	return apiExtraHeaderDefault
}

// authenticate returns the client for the key pair, or nil.
func (c *clientKeys) authenticate(apiKey, extra string) (*config.APIClientKey, string) {
	if apiKey == "" || extra == "" {
		return nil, "missing api key headers"
	}
	client, ok := c.clients[apiKey]
	if !ok {
		return nil, "invalid api key"
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return nil, "invalid extra header"
	}
	return &client, ""
}

// permitted treats an empty permission list as allow-all.
func permitted(client *config.APIClientKey, required string) bool {
	if required == "" || len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		if strings.TrimSpace(p) == required {
			return true
		}
	}
	return false
}

type AuthInterceptor struct {
	cfg     *config.APIConfig
	keys    *clientKeys
	limiter *rateLimiter
}

func NewAuthInterceptor(cfg *config.APIConfig) *AuthInterceptor {
	return &AuthInterceptor{
		cfg:     cfg,
		keys:    newClientKeys(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if a.cfg.Auth.Enabled {
			if err := a.checkAuth(ctx, info.FullMethod); err != nil {
				return nil, err
			}
		}
		if !a.limiter.allow(a.clientKey(ctx)) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

func (a *AuthInterceptor) checkAuth(ctx context.Context, fullMethod string) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}

	client, reason := a.keys.authenticate(first(md.Get(a.keys.apiKeyHeader())), first(md.Get(a.keys.extraHeader())))
	if client == nil {
		return status.Error(codes.Unauthenticated, reason)
	}
	if !permitted(client, requiredPermission(fullMethod)) {
		return status.Error(codes.PermissionDenied, errPermissionDenied.Error())
	}
	return nil
}

func requiredPermission(fullMethod string) string {
	method := fullMethod[strings.LastIndexByte(fullMethod, '/')+1:]
	switch method {
	case "FindAvailable", "GetBill":
		return PermReadLedger
	case "CreateBooking", "CancelBooking", "Checkout", "AddExtra":
		return PermWriteBookings
	case "AddItem", "PlaceOrder", "ReceiveOrder", "DeleteItem":
		return PermWriteInventory
	default:
		return ""
	}
}

func (a *AuthInterceptor) clientKey(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if apiKey := first(md.Get(a.keys.apiKeyHeader())); apiKey != "" {
		return apiKey
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "grpc").Logger()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := requestIDFromMetadata(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDKey, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)
		dur := time.Since(start)

		code := status.Code(err)
		metrics.IncGRPC(info.FullMethod, code.String())

		remote := clientKeyUnknown
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			remote = p.Addr.String()
		}

		ev := base.Info()
		if code == codes.Internal || code == codes.Unknown {
			ev = base.Error().Err(err)
		}
		ev.Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("remote", remote).
			Str("code", code.String()).
			Dur("duration", dur).
			Msg("grpc request")

		return resp, err
	}
}

func requestIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if ok {
		if id := first(md.Get(requestIDKey)); id != "" {
			return id
		}
	}
	return uuid.NewString()
}
