// Package grpc provides the gRPC API for the stream catalog.
//
// The service is described by hand rather than generated: every method takes
// and returns a google.protobuf.Struct, so clients in any language can call it
// with the well-known types alone.
package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	errs "github.com/arkilian/streamcatalog/internal/errors"
	"github.com/arkilian/streamcatalog/pkg/types"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "streamcatalog.v1.StreamService"

// Full method names.
const (
	MethodGetStream    = "/" + ServiceName + "/GetStream"
	MethodListStreams  = "/" + ServiceName + "/ListStreams"
	MethodDeleteStream = "/" + ServiceName + "/DeleteStream"
	MethodSaveSettings = "/" + ServiceName + "/SaveSettings"
)

// StreamService is the stream metadata service behind the gRPC API.
type StreamService interface {
	GetStream(ctx context.Context, org, name string, streamType types.StreamType) (types.StreamDescriptor, error)
	ListStreams(ctx context.Context, org string, streamType *types.StreamType, fetchSchema bool) ([]types.StreamDescriptor, error)
	DeleteStream(ctx context.Context, org, name string, streamType types.StreamType) error
	SaveSettings(ctx context.Context, org, name string, streamType types.StreamType, settings types.StreamSettings) error
}

// StreamServer implements the StreamService gRPC server.
type StreamServer struct {
	service StreamService
}

// NewStreamServer creates a new gRPC stream server.
func NewStreamServer(service StreamService) *StreamServer {
	return &StreamServer{service: service}
}

// Register registers the stream service on s.
func (s *StreamServer) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&serviceDesc, s)
}

// GetStream handles GetStream. Request fields: org, name, type.
func (s *StreamServer) GetStream(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	org, name, streamType, err := streamRef(req)
	if err != nil {
		return nil, err
	}
	desc, err := s.service.GetStream(ctx, org, name, streamType)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(desc)
}

// ListStreams handles ListStreams. Request fields: org, type (optional), fetch_schema.
func (s *StreamServer) ListStreams(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	org := stringField(req, "org")
	if org == "" {
		return nil, status.Error(codes.InvalidArgument, "org is required")
	}

	var streamType *types.StreamType
	if raw := stringField(req, "type"); raw != "" {
		st, err := types.ParseStreamType(raw)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		streamType = &st
	}

	list, err := s.service.ListStreams(ctx, org, streamType, req.GetFields()["fetch_schema"].GetBoolValue())
	if err != nil {
		return nil, toStatus(err)
	}
	if list == nil {
		list = []types.StreamDescriptor{}
	}
	return toStruct(map[string]interface{}{"list": list})
}

// DeleteStream handles DeleteStream. Request fields: org, name, type.
func (s *StreamServer) DeleteStream(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	org, name, streamType, err := streamRef(req)
	if err != nil {
		return nil, err
	}
	if err := s.service.DeleteStream(ctx, org, name, streamType); err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]interface{}{"message": fmt.Sprintf("stream [%s] deleted", name)})
}

// SaveSettings handles SaveSettings. Request fields: org, name, type, settings.
func (s *StreamServer) SaveSettings(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	org, name, streamType, err := streamRef(req)
	if err != nil {
		return nil, err
	}

	var settings types.StreamSettings
	if sv := req.GetFields()["settings"].GetStructValue(); sv != nil {
		raw, err := json.Marshal(sv.AsMap())
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid settings: %v", err)
		}
		if err := json.Unmarshal(raw, &settings); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid settings: %v", err)
		}
	}

	if err := s.service.SaveSettings(ctx, org, name, streamType, settings); err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]interface{}{"message": fmt.Sprintf("stream [%s] settings saved", name)})
}

// toStatus maps a service error onto a gRPC status.
func toStatus(err error) error {
	switch {
	case errs.IsNotFound(err):
		return status.Error(codes.NotFound, err.Error())
	case errs.IsConflict(err):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errs.GetCategory(err) == errs.ErrCategoryValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case errs.IsSubsystemFailure(err):
		return status.Errorf(codes.Internal, "stage %s: %v", errs.GetStage(err), err)
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func streamRef(req *structpb.Struct) (string, string, types.StreamType, error) {
	org, name := stringField(req, "org"), stringField(req, "name")
	if org == "" || name == "" {
		return "", "", "", status.Error(codes.InvalidArgument, "org and name are required")
	}
	st, err := types.ParseStreamType(stringField(req, "type"))
	if err != nil {
		return "", "", "", status.Error(codes.InvalidArgument, err.Error())
	}
	return org, name, st, nil
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

// toStruct converts v to a Struct through its JSON form.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// UnaryLogging logs failed calls and propagates x-request-id.
func UnaryLogging(logger *slog.Logger) grpc.UnaryServerInterceptor {
	logger = logger.With("component", "grpc")
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		requestID := extractRequestID(ctx)
		if err := grpc.SetHeader(ctx, metadata.Pairs("x-request-id", requestID)); err != nil {
			logger.Debug("failed to set response header", "method", info.FullMethod, "request_id", requestID, "err", err)
		}

		resp, err := handler(ctx, req)
		if err != nil {
			if st, _ := status.FromError(err); st.Code() == codes.Internal || st.Code() == codes.Unknown {
				logger.Error("call failed", "method", info.FullMethod, "request_id", requestID, "err", err)
			}
		}
		return resp, err
	}
}

func extractRequestID(ctx context.Context) string {
	// Try to extract from gRPC metadata
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	// Generate a new request ID if not provided
	return uuid.New().String()
}

func unaryHandler(method string, call func(*StreamServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(*StreamServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(*StreamServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("GetStream", (*StreamServer).GetStream),
		unaryHandler("ListStreams", (*StreamServer).ListStreams),
		unaryHandler("DeleteStream", (*StreamServer).DeleteStream),
		unaryHandler("SaveSettings", (*StreamServer).SaveSettings),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "streamcatalog/v1/stream.proto",
}
