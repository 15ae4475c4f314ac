package rpc

import (
	"context"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
)

// userFromContext extracts the calling user's identity from the peer's
// verified client certificate. ok is false if the context carries no peer,
// the peer's auth info isn't TLS, or the certificate chain was not
// verified — any of which mean mTLS rejected or never ran.
//
// internal/jobworker/user and internal/jobworker/grpc/user.go both carried
// this same check, inverted: their guard returned "not ok" precisely when
// a verified chain was present, which is the one case CommonName can
// actually be read. Corrected here.
func userFromContext(ctx context.Context) (user string, ok bool) {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return "", false
	}
	tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return "", false
	}
	if len(tlsInfo.State.VerifiedChains) == 0 || len(tlsInfo.State.VerifiedChains[0]) == 0 {
		return "", false
	}
	return tlsInfo.State.VerifiedChains[0][0].Subject.CommonName, true
}
