package server

import (
	"context"

	"raftpeer/internal"
)

var (
	peerIDKey    = internal.NewCtxKey[PeerID]("peerID")
	peerTermKey  = internal.NewCtxKey[uint64]("peerTerm")
	requestIDKey = internal.NewCtxKey[string]("requestID")
	sessionIDKey = internal.NewCtxKey[string]("sessionID")
)

func SetPeerID(ctx context.Context, id PeerID) context.Context {
	return internal.SetCtxKey(ctx, peerIDKey, id)
}

func GetPeerID(ctx context.Context) (PeerID, bool) {
	return internal.GetCtxKey(ctx, peerIDKey)
}

func SetPeerTerm(ctx context.Context, term uint64) context.Context {
	return internal.SetCtxKey(ctx, peerTermKey, term)
}

func GetPeerTerm(ctx context.Context) (uint64, bool) {
	return internal.GetCtxKey(ctx, peerTermKey)
}

// SetRequestID tags an inbound call. The id shows up in handler logs.
func SetRequestID(ctx context.Context, id string) context.Context {
	return internal.SetCtxKey(ctx, requestIDKey, id)
}

func GetRequestID(ctx context.Context) string {
	return internal.GetCtxKeyOr(ctx, requestIDKey, "-")
}

// SetSessionID tags everything started by one activation of a peer.
func SetSessionID(ctx context.Context, id string) context.Context {
	return internal.SetCtxKey(ctx, sessionIDKey, id)
}

func GetSessionID(ctx context.Context) string {
	return internal.GetCtxKeyOr(ctx, sessionIDKey, "-")
}
