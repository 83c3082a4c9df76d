package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/vibast-solutions/ms-go-contacts/app/entity"
	"github.com/vibast-solutions/ms-go-contacts/app/service"

	"github.com/sirupsen/logrus"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	SessionServiceName = "contacts.session.v1.Session"

	isAuthenticatedMethod = "/" + SessionServiceName + "/IsAuthenticated"
)

type sessionAuthenticator interface {
	IsAuthenticated(ctx context.Context, accessToken string) (*entity.User, error)
}

// SessionServer lets other internal services resolve an access token to its user
// without sharing the signing secret.
type SessionServer struct {
	authService sessionAuthenticator
}

func NewSessionServer(authService sessionAuthenticator) *SessionServer {
	return &SessionServer{authService: authService}
}

// IsAuthenticated takes the token from the request, or from the authorization metadata when the request is empty.
func (s *SessionServer) IsAuthenticated(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	token := strings.TrimSpace(req.GetValue())
	if token == "" {
		token = bearerFromMetadata(ctx)
	}
	if token == "" {
		logrus.Debug("IsAuthenticated validation failed (grpc)")
		return nil, status.Error(codes.InvalidArgument, "access token is required")
	}

	user, err := s.authService.IsAuthenticated(ctx, token)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			logrus.WithError(err).Debug("IsAuthenticated rejected token (grpc)")
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		}
		logrus.WithError(err).Error("IsAuthenticated failed (grpc)")
		return nil, status.Error(codes.Internal, "internal server error")
	}

	fields := map[string]interface{}{
		"id":        float64(user.ID),
		"username":  user.Username,
		"email":     user.Email,
		"role":      string(user.Role),
		"confirmed": user.Confirmed,
		"avatar":    nil,
	}
	if user.Avatar.Valid {
		fields["avatar"] = user.Avatar.String
	}

	res, err := structpb.NewStruct(fields)
	if err != nil {
		logrus.WithError(err).Error("IsAuthenticated failed to encode user (grpc)")
		return nil, status.Error(codes.Internal, "internal server error")
	}
	return res, nil
}

type sessionServiceServer interface {
	IsAuthenticated(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error)
}

var sessionServiceDesc = gogrpc.ServiceDesc{
	ServiceName: SessionServiceName,
	HandlerType: (*sessionServiceServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{
			MethodName: "IsAuthenticated",
			Handler:    isAuthenticatedHandler,
		},
	},
	Streams: []gogrpc.StreamDesc{},
}

func RegisterSessionServer(registrar gogrpc.ServiceRegistrar, srv *SessionServer) {
	registrar.RegisterService(&sessionServiceDesc, srv)
}

func isAuthenticatedHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor gogrpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(sessionServiceServer).IsAuthenticated(ctx, in)
	}

	info := &gogrpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: isAuthenticatedMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(sessionServiceServer).IsAuthenticated(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

type SessionClient struct {
	cc gogrpc.ClientConnInterface
}

func NewSessionClient(cc gogrpc.ClientConnInterface) *SessionClient {
	return &SessionClient{cc: cc}
}

func (c *SessionClient) IsAuthenticated(ctx context.Context, accessToken string, opts ...gogrpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, isAuthenticatedMethod, wrapperspb.String(accessToken), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
