package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// LedgerClient bank.v1.LedgerService 的客戶端
type LedgerClient struct {
	cc grpc.ClientConnInterface
}

func NewLedgerClient(cc grpc.ClientConnInterface) *LedgerClient {
	return &LedgerClient{cc: cc}
}

func (c *LedgerClient) Deposit(ctx context.Context, req *MovementRequest, opts ...grpc.CallOption) (*ReceiptResponse, error) {
	return invoke[ReceiptResponse](ctx, c.cc, "Deposit", req, opts)
}

func (c *LedgerClient) Withdraw(ctx context.Context, req *MovementRequest, opts ...grpc.CallOption) (*ReceiptResponse, error) {
	return invoke[ReceiptResponse](ctx, c.cc, "Withdraw", req, opts)
}

func (c *LedgerClient) Transfer(ctx context.Context, req *TransferRequest, opts ...grpc.CallOption) (*ReceiptResponse, error) {
	return invoke[ReceiptResponse](ctx, c.cc, "Transfer", req, opts)
}

func (c *LedgerClient) GetBalance(ctx context.Context, req *GetBalanceRequest, opts ...grpc.CallOption) (*GetBalanceResponse, error) {
	return invoke[GetBalanceResponse](ctx, c.cc, "GetBalance", req, opts)
}

func (c *LedgerClient) ListTransactions(ctx context.Context, req *ListTransactionsRequest, opts ...grpc.CallOption) (*ListTransactionsResponse, error) {
	return invoke[ListTransactionsResponse](ctx, c.cc, "ListTransactions", req, opts)
}

// invoke 以 JSON codec 呼叫 method
func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
