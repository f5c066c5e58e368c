package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName 完整服務名稱
const ServiceName = "bank.v1.LedgerService"

// LedgerServiceServer 伺服端需實作的方法
type LedgerServiceServer interface {
	Deposit(ctx context.Context, req *MovementRequest) (*ReceiptResponse, error)
	Withdraw(ctx context.Context, req *MovementRequest) (*ReceiptResponse, error)
	Transfer(ctx context.Context, req *TransferRequest) (*ReceiptResponse, error)
	GetBalance(ctx context.Context, req *GetBalanceRequest) (*GetBalanceResponse, error)
	ListTransactions(ctx context.Context, req *ListTransactionsRequest) (*ListTransactionsResponse, error)
}

// RegisterLedgerServiceServer 註冊服務到 gRPC Server
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&LedgerServiceDesc, srv)
}

// unaryHandler 產生 grpc.MethodDesc 所需的 handler
// Req 為請求型別，call 轉呼叫實際的方法
func unaryHandler[Req any, Resp any](method string, call func(LedgerServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// LedgerServiceDesc 手寫的服務描述，訊息以 JSON codec 編碼
var LedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deposit",
			Handler:    unaryHandler("Deposit", LedgerServiceServer.Deposit),
		},
		{
			MethodName: "Withdraw",
			Handler:    unaryHandler("Withdraw", LedgerServiceServer.Withdraw),
		},
		{
			MethodName: "Transfer",
			Handler:    unaryHandler("Transfer", LedgerServiceServer.Transfer),
		},
		{
			MethodName: "GetBalance",
			Handler:    unaryHandler("GetBalance", LedgerServiceServer.GetBalance),
		},
		{
			MethodName: "ListTransactions",
			Handler:    unaryHandler("ListTransactions", LedgerServiceServer.ListTransactions),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bank/v1/ledger.json",
}
