// Package codec registers a plain-JSON gRPC codec under the subtype "json".
//
// arkd's and the asset daemon's generated protobuf client stubs are not part
// of this codebase's dependency surface (unlike LND's public lnrpc), so the
// ARK and asset back-end clients cannot depend on their real generated
// request/response types. Rather than hand-author proto.Message
// implementations for an API surface never observed directly, those two
// clients call conn.Invoke with grpc.CallContentSubtype("json") and plain Go
// structs — this codec is what makes that legal: it marshals/unmarshals the
// wire payload as JSON instead of protobuf, while every other part of the
// gRPC stack (transport, TLS, keepalive, interceptors, the codec registry
// itself) is the genuine google.golang.org/grpc machinery.
package codec

import "encoding/json"

// Codec implements encoding.Codec for the "json" content-subtype.
type Codec struct{}

// Name returns "json", matching grpc.CallContentSubtype("json").
func (Codec) Name() string {
	return "json"
}

// Marshal encodes v as JSON.
func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON data into v.
func (Codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
