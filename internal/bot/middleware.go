package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "matchbot/pkg/logx"
)

// slowRequest is logged at INFO; usually a provider pacer wait.
const slowRequest = 750 * time.Millisecond

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// RequestObserver receives one call per handled request.
type RequestObserver interface {
	ObserveRequest(route string, ok bool, d time.Duration)
}

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i] != nil {
			h = m[i](h)
		}
	}
	return h
}

func withTimeout(d time.Duration) Middleware {
	if d <= 0 {
		return nil
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// withRecover turns a handler panic into an error so the error reply still
// goes out.
func withRecover(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) (err error) {
		defer func() {
			if p := recover(); p != nil {
				req.Logger.Error("handler panic", logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("%s: panic: %v", req.Route, p)
			}
		}()
		return next(ctx, req)
	}
}

// withAccounting logs and, when obs is set, records every request.
func withAccounting(obs RequestObserver) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)
			if obs != nil {
				obs.ObserveRequest(req.Route, err == nil, d)
			}

			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.String("route", req.Route),
				logx.Duration("dur", d),
			}
			switch {
			case err != nil:
				req.Logger.Warn("request failed", append(fields, logx.Err(err))...)
			case d >= slowRequest:
				req.Logger.Info("request slow", fields...)
			default:
				req.Logger.Debug("request ok", fields...)
			}
			return err
		}
	}
}
