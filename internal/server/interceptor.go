package server

import (
	"context"
	"log"
	"time"

	"buf.build/go/protovalidate"
	"connectrpc.com/connect"
	"google.golang.org/protobuf/proto"
)

// Binder maps a request payload onto the message that carries its
// validation rules.
type Binder func(proto.Message) (proto.Message, error)

// ValidationInterceptor rejects requests that fail protovalidate rules. When
// bind is set, the bound message is validated in place of the payload.
func ValidationInterceptor(validator protovalidate.Validator, bind Binder) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			msg, ok := req.Any().(proto.Message)
			if !ok {
				return next(ctx, req)
			}
			if bind != nil {
				bound, err := bind(msg)
				if err != nil {
					return nil, connect.NewError(connect.CodeInvalidArgument, err)
				}
				msg = bound
			}
			if err := validator.Validate(msg); err != nil {
				return nil, connect.NewError(connect.CodeInvalidArgument, err)
			}
			return next(ctx, req)
		}
	}
}

// LoggingInterceptor logs each call with its procedure, outcome, and duration.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			outcome := "ok"
			if err != nil {
				outcome = connect.CodeOf(err).String()
			}
			log.Printf("rpc %s %s %s", req.Spec().Procedure, outcome, time.Since(start))
			return resp, err
		}
	}
}
