package internal

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"strconv"
)

// https://adithayyil.tech/posts/go-type-safe-contexts/

// CtxKey is a context key bound to the type of the value stored under it, so lookups never need a type assertion
// at the call site.
type CtxKey[T any] struct {
	name string
}

// NewCtxKey creates a new typed context key
func NewCtxKey[T any](name string) CtxKey[T] {
	return CtxKey[T]{name: name}
}

func (k CtxKey[T]) String() string {
	return fmt.Sprintf("Key[%T](%s)", *new(T), k.name)
}

// SetCtxKey returns a copy of ctx carrying value under key
func SetCtxKey[T any](ctx context.Context, key CtxKey[T], value T) context.Context {
	return context.WithValue(ctx, key, value)
}

// GetCtxKey retrieves the value stored under key. The bool is false when the key is absent.
func GetCtxKey[T any](ctx context.Context, key CtxKey[T]) (T, bool) {
	value, ok := ctx.Value(key).(T)
	return value, ok
}

// GetCtxKeyOr is GetCtxKey with a fallback for absent keys.
func GetCtxKeyOr[T any](ctx context.Context, key CtxKey[T], fallback T) T {
	if value, ok := GetCtxKey(ctx, key); ok {
		return value
	}
	return fallback
}

// ReserveBasePort finds a base port in [7000, 17000) such that count consecutive ports on host are free. The ports are
// released before returning, so a racing process may still grab one of them.
func ReserveBasePort(host string, count int) (int, error) {
	const (
		lowest  = 7000
		highest = 17000
		tries   = 50
	)
	for range tries {
		base := lowest + rand.N(highest-lowest-count)
		if portsFree(host, base, count) {
			return base, nil
		}
	}
	return 0, fmt.Errorf("no %d consecutive free ports on %s after %d tries", count, host, tries)
}

func portsFree(host string, base, count int) bool {
	listeners := make([]net.Listener, 0, count)
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()
	for port := base; port < base+count; port++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			return false
		}
		listeners = append(listeners, l)
	}
	return true
}
