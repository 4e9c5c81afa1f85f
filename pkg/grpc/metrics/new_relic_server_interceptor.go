package metrics

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
	grpc_core "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/code-payments/code-vesting/pkg/grpc"
	metrics_util "github.com/code-payments/code-vesting/pkg/metrics"
)

const (
	grpcRequestPackageAttributeKey = "grpc.request.package"
	grpcRequestServiceAttributeKey = "grpc.request.service"
	grpcRequestMethodAttributeKey  = "grpc.request.method"

	grpcResponseStatusCodeAttributeKey      = "grpc.response.statusCode"
	grpcResponseStatusMessageAttributeKey   = "grpc.response.statusMessage"
	grpcResponseStatusCodeLevelAttributeKey = "grpc.response.statusCodeLevel"
)

type statusLevel string

const (
	infoLevel    statusLevel = "info"
	warningLevel statusLevel = "warning"
	errorLevel   statusLevel = "error"
)

// levelForCode classifies a status code. Only error level codes are reported
// to New Relic as errors.
func levelForCode(code codes.Code) statusLevel {
	switch code {
	case codes.OK, codes.AlreadyExists, codes.Canceled, codes.InvalidArgument, codes.NotFound, codes.Unauthenticated:
		return infoLevel
	case codes.Aborted, codes.DeadlineExceeded, codes.FailedPrecondition, codes.OutOfRange,
		codes.PermissionDenied, codes.ResourceExhausted, codes.Unavailable:
		return warningLevel
	default:
		return errorLevel
	}
}

// CustomNewRelicUnaryServerInterceptor starts a New Relic transaction for each
// unary call, other than health checks
func CustomNewRelicUnaryServerInterceptor(app *newrelic.Application) grpc_core.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc_core.UnaryServerInfo, handler grpc_core.UnaryHandler) (interface{}, error) {
		if app == nil || grpc.IsHealthCheckEndpoint(info.FullMethod) {
			return handler(ctx, req)
		}

		var resp interface{}
		err := trace(ctx, app, info.FullMethod, func(ctx context.Context) error {
			var err error
			resp, err = handler(ctx, req)
			return err
		})
		return resp, err
	}
}

// CustomNewRelicStreamServerInterceptor starts a New Relic transaction for each
// streaming call
func CustomNewRelicStreamServerInterceptor(app *newrelic.Application) grpc_core.StreamServerInterceptor {
	return func(srv interface{}, ss grpc_core.ServerStream, info *grpc_core.StreamServerInfo, handler grpc_core.StreamHandler) error {
		if app == nil {
			return handler(srv, ss)
		}

		return trace(ss.Context(), app, info.FullMethod, func(ctx context.Context) error {
			return handler(srv, &wrappedStream{ctx, ss})
		})
	}
}

// trace runs call within a transaction named after the method. The application
// and transaction are both available to call through its context.
func trace(ctx context.Context, app *newrelic.Application, fullMethod string, call func(ctx context.Context) error) error {
	ctx = metrics_util.WithNewRelicApplication(ctx, app)

	txn := startTransaction(ctx, app, fullMethod)
	defer txn.End()

	if packageName, serviceName, methodName, err := grpc.ParseFullMethodName(fullMethod); err == nil {
		txn.AddAttribute(grpcRequestPackageAttributeKey, packageName)
		txn.AddAttribute(grpcRequestServiceAttributeKey, serviceName)
		txn.AddAttribute(grpcRequestMethodAttributeKey, methodName)
	}

	err := call(newrelic.NewContext(ctx, txn))
	recordStatus(txn, status.Convert(err))
	return err
}

func recordStatus(txn *newrelic.Transaction, s *status.Status) {
	level := levelForCode(s.Code())

	txn.SetWebResponse(nil).WriteHeader(http.StatusOK)
	txn.AddAttribute(grpcResponseStatusCodeAttributeKey, s.Code().String())
	txn.AddAttribute(grpcResponseStatusMessageAttributeKey, s.Message())
	txn.AddAttribute(grpcResponseStatusCodeLevelAttributeKey, string(level))

	if level == errorLevel {
		txn.NoticeError(&newrelic.Error{
			Message: s.Message(),
			Class:   "gRPC Status: " + s.Code().String(),
		})
	}
}

type wrappedStream struct {
	ctx context.Context
	grpc_core.ServerStream
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}

func startTransaction(ctx context.Context, app *newrelic.Application, fullMethod string) *newrelic.Transaction {
	method := strings.TrimPrefix(fullMethod, "/")

	var hdrs http.Header
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		hdrs = make(http.Header, len(md))
		for k, vs := range md {
			for _, v := range vs {
				hdrs.Add(k, v)
			}
		}
	}

	txn := app.StartTransaction(method)
	txn.SetWebRequest(newrelic.WebRequest{
		Header:    hdrs,
		URL:       methodURL(method, hdrs.Get(":authority")),
		Method:    method,
		Transport: newrelic.TransportHTTP,
	})
	return txn
}

// methodURL builds a URL for the method from a gRPC target name, which may use
// the unix or dns schemes
func methodURL(method, target string) *url.URL {
	host := strings.TrimPrefix(target, "dns:///")
	if strings.HasPrefix(target, "unix:") {
		host = "localhost"
	}
	return &url.URL{
		Scheme: "grpc",
		Host:   host,
		Path:   method,
	}
}
