package middleware

import "github.com/aretw0/citylink/pkg/ports"

// Middleware allows wrapping a KeyValueChannel to add behavior.
type Middleware func(ports.KeyValueChannel) ports.KeyValueChannel

// Chain applies middlewares so that the first one is outermost.
func Chain(ch ports.KeyValueChannel, mws ...Middleware) ports.KeyValueChannel {
	for i := len(mws) - 1; i >= 0; i-- {
		ch = mws[i](ch)
	}
	return ch
}
