package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"connectrpc.com/connect"
)

// ErrPanicRecovered indicates an RPC handler panicked and was recovered.
var ErrPanicRecovered = errors.New("panic recovered in rpc handler")

// readOnlyProcedures are the state-snapshot RPCs that intentionctl's
// "monitor" command polls twice a second. Logging each poll at Info would
// drown the daemon's log, so successful calls to these land at Debug.
var readOnlyProcedures = map[string]struct{}{
	servicePath + "GetCoordinationState": {},
	servicePath + "GetDragState":         {},
	servicePath + "ListSessions":         {},
}

// LoggingInterceptor returns a ConnectRPC unary interceptor that logs every
// RPC call with the procedure name, duration, and error (if any). Calls
// that return errors log at Warn; successful operator actions log at Info;
// successful read-only snapshot calls log at Debug.
func LoggingInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			procedure := req.Spec().Procedure
			attrs := []slog.Attr{
				slog.String("procedure", procedure),
				slog.Duration("duration", duration),
			}

			switch {
			case err != nil:
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelWarn, "rpc completed with error", attrs...)
			default:
				level := slog.LevelInfo
				if _, ok := readOnlyProcedures[procedure]; ok {
					level = slog.LevelDebug
				}
				logger.LogAttrs(ctx, level, "rpc completed", attrs...)
			}

			return resp, err
		}
	}
}

// RecoveryInterceptor returns a ConnectRPC unary interceptor that recovers
// from panics in RPC handlers, logging the panic value and stack trace at
// Error level and returning a CodeInternal error to the client.
func RecoveryInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)

					logger.ErrorContext(ctx, "panic recovered in rpc handler",
						slog.String("procedure", req.Spec().Procedure),
						slog.Any("panic", r),
						slog.String("stack", string(buf[:n])),
					)

					retErr = connect.NewError(connect.CodeInternal,
						fmt.Errorf("%s: %w", req.Spec().Procedure, ErrPanicRecovered))
				}
			}()

			return next(ctx, req)
		}
	}
}
