package grpc

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Authenticator 驗證 Token 並回傳客戶 ID
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (uuid.UUID, error)
}

type clientIDKey struct{}

// ClientIDFromContext 取得 AuthInterceptor 驗證後的客戶 ID
func ClientIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(clientIDKey{}).(uuid.UUID)
	return id, ok
}

// AuthInterceptor 從 metadata "authorization" 取出 Token 驗證
// 接受 "Bearer <token>" 或單純的 token，只檢查 LedgerService 的方法 (health 等不需 Token)
func AuthInterceptor(auth Authenticator) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		authHeaders := md.Get("authorization")
		if len(authHeaders) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization header")
		}

		raw := strings.TrimSpace(authHeaders[0])
		if token, found := strings.CutPrefix(raw, "Bearer "); found {
			raw = strings.TrimSpace(token)
		}
		clientID, err := auth.Authenticate(ctx, raw)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		return handler(context.WithValue(ctx, clientIDKey{}, clientID), req)
	}
}

// BearerToken 回傳 client 端攔截器，每次呼叫附上 Token
func BearerToken(token string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
