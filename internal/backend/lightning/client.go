// Package lightning provides a gRPC client wrapper for the Lightning node
// backing the gateway's Lightning Coordinator (lift/land flows).
//
// This package abstracts LND behind a narrow interface so the Lightning
// Coordinator depends on Client, not on LND internals — useful for testing
// and for a future migration to another Lightning implementation.
package lightning

import (
	"context"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/afeezaziz/arkrelay-gateway/internal/rpcclient"
	"github.com/afeezaziz/arkrelay-gateway/pkg/logger"
	"github.com/afeezaziz/arkrelay-gateway/pkg/retry"
)

// Config holds Lightning node connection settings (config.toml [lightning]).
type Config struct {
	GRPCHost              string
	GRPCPort              string
	TLSCertPath           string
	MacaroonPath          string
	Network               string
	PaymentTimeoutSeconds int
	MaxPaymentFeeSats     int64
	RPCTimeoutSeconds     int
	RetryMaxAttempts      int
	RetryBaseDelaySeconds int
	BreakerThreshold      int
	BreakerRecoverySec    int
}

// Client interface for Lightning lift/land operations used by the
// Lightning Coordinator. See DESIGN.md for the grounding.
type Client interface {
	// PayInvoice pays a BOLT11 invoice (land flow).
	PayInvoice(ctx context.Context, bolt11 string, maxFeeSats int64) (*PaymentResult, error)
	// DecodeInvoice decodes a BOLT11 invoice without paying it.
	DecodeInvoice(ctx context.Context, bolt11 string) (*Invoice, error)
	// AddInvoice creates a new invoice the counterparty can pay (lift flow).
	AddInvoice(ctx context.Context, amountSats int64, memo string, expirySeconds int64) (*AddedInvoice, error)
	// LookupInvoice polls an invoice's settlement state by payment hash.
	LookupInvoice(ctx context.Context, paymentHashHex string) (*InvoiceState, error)
	// GetWalletBalance returns the on-chain wallet balance.
	GetWalletBalance(ctx context.Context) (*WalletBalance, error)
	// GetChannelBalance returns the aggregate Lightning channel balance.
	GetChannelBalance(ctx context.Context) (*ChannelBalance, error)
	// GetInfo returns basic node information, used for health checks.
	GetInfo(ctx context.Context) (*NodeInfo, error)
	// HealthCheck reports whether the node answers GetInfo; chain sync is
	// not checked.
	HealthCheck(ctx context.Context) bool
	// Close closes the underlying gRPC connection.
	Close() error
}

type PaymentResultStatus int

const (
	Succeeded PaymentResultStatus = iota
	Failed
	InFlight
)

func (s PaymentResultStatus) String() string {
	switch s {
	case Succeeded:
		return "SUCCEEDED"
	case Failed:
		return "FAILED"
	case InFlight:
		return "IN_FLIGHT"
	default:
		return "UNKNOWN"
	}
}

type PaymentResult struct {
	PaymentHash     string
	PaymentPreimage string
	FeeSats         int64
	Status          PaymentResultStatus
}

type Invoice struct {
	Destination string
	AmountSats  int64
	PaymentHash string
	Expiry      int64
	Description string
	IsExpired   bool
}

type AddedInvoice struct {
	PaymentRequest string // BOLT11 string
	PaymentHashHex string
	AddIndex       uint64
}

type InvoiceState struct {
	Settled     bool
	AmountSats  int64
	PreimageHex string
}

type WalletBalance struct {
	ConfirmedSats   int64
	UnconfirmedSats int64
	TotalSats       int64
}

type ChannelBalance struct {
	LocalSats  int64
	RemoteSats int64
}

type NodeInfo struct {
	Alias         string
	PubKey        string
	SyncedToChain bool
	SyncedToGraph bool
	BlockHeight   uint32
	NumChannels   uint32
}

// grpcClient is the concrete Client implementation backed by LND's lnrpc.
type grpcClient struct {
	conn         *grpc.ClientConn
	lnClient     lnrpc.LightningClient
	routerClient routerrpc.RouterClient
	cfg          Config
	retryPolicy  retry.Policy
}

// NewClient dials the Lightning node and validates the connection with a
// GetInfo call before returning.
func NewClient(cfg Config) (Client, error) {
	conn, err := rpcclient.Dial(rpcclient.DialConfig{
		Host:         cfg.GRPCHost,
		Port:         cfg.GRPCPort,
		TLSCertPath:  cfg.TLSCertPath,
		MacaroonPath: cfg.MacaroonPath,
	})
	if err != nil {
		return nil, err
	}

	lnClient := lnrpc.NewLightningClient(conn)

	ctx, cancel := rpcclient.WithTimeout(context.Background(), cfg.RPCTimeoutSeconds)
	defer cancel()
	info, err := lnClient.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to lightning node (is it running? wallet unlocked?): %w", err)
	}

	logger.Info("lightning node connected",
		zap.String("alias", info.Alias),
		zap.String("pubkey", info.IdentityPubkey),
		zap.Uint32("height", info.BlockHeight),
		zap.Bool("synced_chain", info.SyncedToChain),
		zap.Bool("synced_graph", info.SyncedToGraph),
	)
	if !info.SyncedToChain {
		logger.Warn("lightning node is not synced to chain — payments may fail until sync completes")
	}

	return &grpcClient{
		conn:         conn,
		lnClient:     lnClient,
		routerClient: routerrpc.NewRouterClient(conn),
		cfg:          cfg,
		retryPolicy: retry.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   time.Duration(cfg.RetryBaseDelaySeconds) * time.Second,
			Breaker:     retry.NewBreaker(cfg.BreakerThreshold, time.Duration(cfg.BreakerRecoverySec)*time.Second),
			Label:       "lightning",
		},
	}, nil
}

func (c *grpcClient) HealthCheck(ctx context.Context) bool {
	_, err := c.GetInfo(ctx)
	return err == nil
}

func (c *grpcClient) Close() error {
	return c.conn.Close()
}
