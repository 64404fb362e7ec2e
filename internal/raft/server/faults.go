package server

import (
	"context"
	"math/rand/v2"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"raftpeer/internal/raft/config"
)

// faultInjector makes an outbound link leaky: every call is delayed, and either the request or the response may be
// lost. A lost response means the remote peer did handle the call.
type faultInjector struct {
	lossRate float64
	delay    time.Duration
	// chance returns a value in [0, 1). Tests replace it to force an outcome.
	chance func() float64
}

func newFaultInjector(faults config.Faults) *faultInjector {
	return &faultInjector{
		lossRate: faults.LossRate,
		delay:    faults.Delay,
		chance:   rand.Float64,
	}
}

func (f *faultInjector) lost() bool {
	return f.chance() < f.lossRate
}

// unaryClientInterceptor applies the fault model to every unary call made through a connection.
func (f *faultInjector) unaryClientInterceptor(ctx context.Context, method string, req, reply any,
	cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return status.FromContextError(ctx.Err()).Err()
		}
	}

	if f.lost() {
		return status.Errorf(codes.Unavailable, "fault injection: request to %s lost", method)
	}
	if err := invoker(ctx, method, req, reply, cc, opts...); err != nil {
		return err
	}
	if f.lost() {
		return status.Errorf(codes.Unavailable, "fault injection: response from %s lost", method)
	}
	return nil
}
