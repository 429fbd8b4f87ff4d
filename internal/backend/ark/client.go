// Package ark is the gRPC client for the shared-UTXO transaction
// construction service (arkd): VTXO issuance, spend, and the multi-party
// signing ceremony the Ceremony Orchestrator drives.
//
// arkd's generated protobuf client is not part of this codebase's
// dependency surface, so calls go out over the RPC Shell's registered JSON
// codec (internal/rpcclient/codec) rather than hand-authored proto.Message
// types — see DESIGN.md for why.
package ark

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"

	"github.com/afeezaziz/arkrelay-gateway/internal/rpcclient"
	"github.com/afeezaziz/arkrelay-gateway/pkg/retry"
)

// Config holds ARK daemon connection settings (config.toml [ark]).
type Config struct {
	GRPCHost              string
	GRPCPort              string
	TLSCertPath           string
	MacaroonPath          string
	RPCTimeoutSeconds     int
	MaxMessageLength      int
	RetryMaxAttempts      int
	RetryBaseDelaySeconds int
	BreakerThreshold      int
	BreakerRecoverySec    int
}

// Client is the operation set the Ceremony Orchestrator and VTXO Inventory
// use against arkd. Method names mirror the back-end RPC dependency list.
type Client interface {
	CreateVtxos(ctx context.Context, req CreateVtxosRequest) (*CreateVtxosResponse, error)
	ListVtxos(ctx context.Context, req ListVtxosRequest) (*ListVtxosResponse, error)
	SpendVtxos(ctx context.Context, req SpendVtxosRequest) (*SpendVtxosResponse, error)
	PrepareSigningRequest(ctx context.Context, req PrepareSigningRequestRequest) (*PrepareSigningRequestResponse, error)
	SubmitSignatures(ctx context.Context, req SubmitSignaturesRequest) (*SubmitSignaturesResponse, error)
	GetSessionStatus(ctx context.Context, req GetSessionStatusRequest) (*GetSessionStatusResponse, error)
	HealthCheck(ctx context.Context) bool
	Close() error
}

type grpcClient struct {
	conn        *grpc.ClientConn
	cfg         Config
	retryPolicy retry.Policy
}

// NewClient dials arkd over the RPC Shell's shared dialer.
func NewClient(cfg Config) (Client, error) {
	conn, err := rpcclient.Dial(rpcclient.DialConfig{
		Host:             cfg.GRPCHost,
		Port:             cfg.GRPCPort,
		TLSCertPath:      cfg.TLSCertPath,
		MacaroonPath:     cfg.MacaroonPath,
		MaxMessageLength: cfg.MaxMessageLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial arkd: %w", err)
	}

	return &grpcClient{
		conn: conn,
		cfg:  cfg,
		retryPolicy: retry.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   time.Duration(cfg.RetryBaseDelaySeconds) * time.Second,
			Breaker:     retry.NewBreaker(cfg.BreakerThreshold, time.Duration(cfg.BreakerRecoverySec)*time.Second),
			Label:       "arkd",
		},
	}, nil
}

// invoke makes one JSON-over-gRPC call through the retry policy.
func (c *grpcClient) invoke(ctx context.Context, method string, req, resp any) error {
	callCtx, cancel := rpcclient.WithTimeout(ctx, c.cfg.RPCTimeoutSeconds)
	defer cancel()

	return c.retryPolicy.Do(callCtx, func(ctx context.Context) error {
		return c.conn.Invoke(ctx, method, req, resp, grpc.CallContentSubtype("json"))
	})
}

func (c *grpcClient) HealthCheck(ctx context.Context) bool {
	var resp struct {
		Ok bool `json:"ok"`
	}
	err := c.invoke(ctx, "/arkd.ArkService/HealthCheck", struct{}{}, &resp)
	return err == nil && resp.Ok
}

func (c *grpcClient) Close() error {
	return c.conn.Close()
}
