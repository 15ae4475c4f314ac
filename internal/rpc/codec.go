// Package rpc implements the PoolControl gRPC control plane: a small,
// mTLS-secured API to submit tasks to a Pool and query their outcome.
//
// Grounded on internal/jobworker/grpc and
// internal/jobworker/cli/serve.go for the server wiring. The retrieved
// proto/gen/go/jobworker/v1/service_api_grpc.pb.go carries only
// the generated service interface, not the protoc-gen-go-generated message
// types it and test/jobworker/jobworker_test.go depend on, and regenerating
// real bindings needs protoc. So this package keeps google.golang.org/grpc
// and google.golang.org/protobuf as genuinely exercised dependencies but
// swaps the wire codec: plain Go request/response structs, marshaled as
// JSON through a hand-registered encoding.Codec, dispatched through a
// hand-built grpc.ServiceDesc rather than protoc-generated glue.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the name jsonCodec is registered under with
// google.golang.org/grpc/encoding. The server uses it for requests whose
// content-subtype is "json". PoolControlClient does not set a content-subtype
// itself, so its calls use this codec only when a grpc.CallContentSubtype
// option naming it is passed; otherwise grpc's default protobuf codec is used.
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec implements encoding.Codec over plain Go structs using
// encoding/json, standing in for the protoc-gen-go marshaling this
// service would otherwise use.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }
