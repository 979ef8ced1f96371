// Package identityrpc is the gRPC contract between the console and the
// identity daemon. Messages are plain Go structs carried with a JSON codec,
// so no generated stubs are needed; the service descriptor below plays the
// role of the generated *_grpc.pb.go file.
package identityrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const ServiceName = "adminvault.identity.v1.Identity"

// FullMethod returns the gRPC method path for name.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

type IdentityServer interface {
	SignUp(context.Context, *SignUpRequest) (*SessionResponse, error)
	SignIn(context.Context, *SignInRequest) (*SessionResponse, error)
	Refresh(context.Context, *RefreshRequest) (*SessionResponse, error)
	SignOut(context.Context, *SignOutRequest) (*SignOutResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
}

func RegisterIdentityServer(s grpc.ServiceRegistrar, srv IdentityServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IdentityServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SignUp", IdentityServer.SignUp),
		unary("SignIn", IdentityServer.SignIn),
		unary("Refresh", IdentityServer.Refresh),
		unary("SignOut", IdentityServer.SignOut),
		unary("Ping", IdentityServer.Ping),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "identityrpc/service.go",
}

func unary[Req, Resp any](name string, call func(IdentityServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(IdentityServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(IdentityServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

type IdentityClient interface {
	SignUp(ctx context.Context, in *SignUpRequest, opts ...grpc.CallOption) (*SessionResponse, error)
	SignIn(ctx context.Context, in *SignInRequest, opts ...grpc.CallOption) (*SessionResponse, error)
	Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*SessionResponse, error)
	SignOut(ctx context.Context, in *SignOutRequest, opts ...grpc.CallOption) (*SignOutResponse, error)
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
}

type client struct {
	cc grpc.ClientConnInterface
}

func NewIdentityClient(cc grpc.ClientConnInterface) IdentityClient {
	return &client{cc: cc}
}

// Dial opens a plaintext connection to the identity daemon. Extra options
// are appended, so callers can add interceptors.
func Dial(endpoint string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	return grpc.NewClient(endpoint, append(base, opts...)...)
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, name string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(name), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) SignUp(ctx context.Context, in *SignUpRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SignUpRequest, SessionResponse](ctx, c.cc, "SignUp", in, opts)
}

func (c *client) SignIn(ctx context.Context, in *SignInRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SignInRequest, SessionResponse](ctx, c.cc, "SignIn", in, opts)
}

func (c *client) Refresh(ctx context.Context, in *RefreshRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[RefreshRequest, SessionResponse](ctx, c.cc, "Refresh", in, opts)
}

func (c *client) SignOut(ctx context.Context, in *SignOutRequest, opts ...grpc.CallOption) (*SignOutResponse, error) {
	return invoke[SignOutRequest, SignOutResponse](ctx, c.cc, "SignOut", in, opts)
}

func (c *client) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingRequest, PingResponse](ctx, c.cc, "Ping", in, opts)
}
