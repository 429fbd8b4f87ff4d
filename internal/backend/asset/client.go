// Package asset is the gRPC client for the Taproot-asset issuance/transfer
// service (tapd): asset listing, minting, transfer, and asset-denominated
// invoices used by non-sats sessions.
//
// As with internal/backend/ark, tapd's generated protobuf client is not
// vendored into this codebase, so calls go over the RPC Shell's JSON codec.
// See DESIGN.md.
package asset

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"

	"github.com/afeezaziz/arkrelay-gateway/internal/rpcclient"
	"github.com/afeezaziz/arkrelay-gateway/pkg/retry"
)

// Config holds the asset daemon connection settings (config.toml [asset]).
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

// Client is the operation set the gateway uses against the asset daemon.
type Client interface {
	ListAssets(ctx context.Context, req ListAssetsRequest) (*ListAssetsResponse, error)
	MintAsset(ctx context.Context, req MintAssetRequest) (*MintAssetResponse, error)
	TransferAsset(ctx context.Context, req TransferAssetRequest) (*TransferAssetResponse, error)
	CreateAssetInvoice(ctx context.Context, req CreateAssetInvoiceRequest) (*CreateAssetInvoiceResponse, error)
	PayAssetInvoice(ctx context.Context, req PayAssetInvoiceRequest) (*PayAssetInvoiceResponse, error)
	HealthCheck(ctx context.Context) bool
	Close() error
}

type grpcClient struct {
	conn        *grpc.ClientConn
	cfg         Config
	retryPolicy retry.Policy
}

// NewClient dials the asset daemon over the RPC Shell's shared dialer.
func NewClient(cfg Config) (Client, error) {
	conn, err := rpcclient.Dial(rpcclient.DialConfig{
		Host:             cfg.GRPCHost,
		Port:             cfg.GRPCPort,
		TLSCertPath:      cfg.TLSCertPath,
		MacaroonPath:     cfg.MacaroonPath,
		MaxMessageLength: cfg.MaxMessageLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial asset daemon: %w", err)
	}

	return &grpcClient{
		conn: conn,
		cfg:  cfg,
		retryPolicy: retry.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   time.Duration(cfg.RetryBaseDelaySeconds) * time.Second,
			Breaker:     retry.NewBreaker(cfg.BreakerThreshold, time.Duration(cfg.BreakerRecoverySec)*time.Second),
			Label:       "tapd",
		},
	}, nil
}

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
	err := c.invoke(ctx, "/tapd.AssetService/HealthCheck", struct{}{}, &resp)
	return err == nil && resp.Ok
}

func (c *grpcClient) Close() error {
	return c.conn.Close()
}
