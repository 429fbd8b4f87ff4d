package rpcclient

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/macaroon.v2"

	"github.com/afeezaziz/arkrelay-gateway/pkg/logger"
)

// macaroonCredential implements grpc.PerRPCCredentials. It attaches the
// hex-encoded serialized macaroon as gRPC metadata on every RPC call, the
// way LND, arkd, and the asset daemon all expect authorization to arrive.
type macaroonCredential struct {
	macaroon string // hex-encoded serialized macaroon
}

// GetRequestMetadata is called by gRPC before each RPC.
func (m macaroonCredential) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"macaroon": m.macaroon}, nil
}

// RequireTransportSecurity returns true: macaroons are bearer credentials
// and must only ever travel over an encrypted channel.
func (m macaroonCredential) RequireTransportSecurity() bool {
	return true
}

// LoadMacaroon reads and unmarshals a macaroon file, logging each caveat at
// debug level so an operator can see what a daemon's macaroon actually
// authorizes without needing a separate inspection tool.
func LoadMacaroon(path string) (*macaroon.Macaroon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read macaroon file %s: %w", path, err)
	}

	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal macaroon %s: %w", path, err)
	}

	for _, caveat := range mac.Caveats() {
		logger.Debug("macaroon caveat",
			zap.String("path", path),
			zap.ByteString("id", caveat.Id),
		)
	}

	return mac, nil
}
