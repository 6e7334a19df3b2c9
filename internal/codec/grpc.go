package codec

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-desc
const (
	generationService = "storyweave.generation.v1.Generation"
	completeMethod    = "/" + generationService + "/Complete"
)

// GenerationServer is implemented by in-process generation backends served
// over gRPC. Payloads are plain structpb structs so no generated stubs are
// needed on either side.
type GenerationServer interface {
	Complete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// GenerationServiceDesc registers a GenerationServer on a *grpc.Server.
var GenerationServiceDesc = grpc.ServiceDesc{
	ServiceName: generationService,
	HandlerType: (*GenerationServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Complete",
			Handler:    completeHandler,
		},
	},
	Streams: []grpc.StreamDesc{},
}

func completeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GenerationServer).Complete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: completeMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GenerationServer).Complete(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// #endregion service-desc

// #region grpc-transport
// GRPCTransport reaches a generation backend over gRPC.
type GRPCTransport struct {
	conn   grpc.ClientConnInterface
	closer func() error
}

// NewGRPCTransport connects to a generation gRPC server.
func NewGRPCTransport(addr string) (*GRPCTransport, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &GRPCTransport{conn: conn, closer: conn.Close}, nil
}

// NewGRPCTransportWithConn wraps an existing connection. The caller owns it.
func NewGRPCTransportWithConn(conn grpc.ClientConnInterface) *GRPCTransport {
	return &GRPCTransport{conn: conn}
}

// Close shuts down a connection opened by NewGRPCTransport.
func (t *GRPCTransport) Close() error {
	if t.closer == nil {
		return nil
	}
	return t.closer()
}

// Complete sends the request as a struct and reads the "text" field back.
func (t *GRPCTransport) Complete(ctx context.Context, req Request) (string, error) {
	msgs := make([]any, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = map[string]any{"role": string(m.Role), "content": m.Content}
	}
	in, err := structpb.NewStruct(map[string]any{
		"model":       req.Model,
		"temperature": req.Temperature,
		"max_tokens":  float64(req.MaxTokens),
		"json":        req.JSON,
		"messages":    msgs,
	})
	if err != nil {
		return "", fmt.Errorf("build grpc request: %w", err)
	}

	out := new(structpb.Struct)
	if err := t.conn.Invoke(ctx, completeMethod, in, out); err != nil {
		st, _ := status.FromError(err)
		switch st.Code() {
		case codes.DeadlineExceeded:
			return "", &CallError{Kind: KindTimeout, Err: err}
		case codes.Canceled:
			return "", &CallError{Kind: KindCanceled, Err: err}
		}
		return "", &CallError{Kind: KindHTTP, Status: httpStatus(st.Code()), Body: st.Message()}
	}

	text, ok := out.GetFields()["text"]
	if !ok {
		return "", &CallError{Kind: KindMalformed, Body: "response has no text field"}
	}
	if _, isString := text.GetKind().(*structpb.Value_StringValue); !isString {
		return "", &CallError{Kind: KindMalformed, Body: "text field is not a string"}
	}
	return text.GetStringValue(), nil
}

// httpStatus maps a gRPC code onto the HTTP status a gateway would return.
func httpStatus(c codes.Code) int {
	switch c {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// #endregion grpc-transport
