package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	RaftService_RequestVote_FullMethodName     = "/raft.RaftService/RequestVote"
	RaftService_AppendEntries_FullMethodName   = "/raft.RaftService/AppendEntries"
	RaftService_GetCommittedCmd_FullMethodName = "/raft.RaftService/GetCommittedCmd"
	RaftService_GetStatus_FullMethodName       = "/raft.RaftService/GetStatus"
	RaftService_NewCommand_FullMethodName      = "/raft.RaftService/NewCommand"
)

// RaftServiceClient is the client API for RaftService. RequestVote and AppendEntries are used between peers, the
// remaining calls by the controller.
type RaftServiceClient interface {
	RequestVote(ctx context.Context, in *RequestVoteRequest, opts ...grpc.CallOption) (*RequestVoteResponse, error)
	AppendEntries(ctx context.Context, in *AppendEntriesRequest, opts ...grpc.CallOption) (*AppendEntriesResponse, error)
	GetCommittedCmd(ctx context.Context, in *GetCommittedCmdRequest, opts ...grpc.CallOption) (*GetCommittedCmdResponse, error)
	GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*StatusReport, error)
	NewCommand(ctx context.Context, in *NewCommandRequest, opts ...grpc.CallOption) (*StatusReport, error)
}

type raftServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewRaftServiceClient(cc grpc.ClientConnInterface) RaftServiceClient {
	return &raftServiceClient{cc}
}

// invoke forces the raftwire codec so callers never have to pass it themselves.
func (c *raftServiceClient) invoke(ctx context.Context, method string, in, out Message, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *raftServiceClient) RequestVote(ctx context.Context, in *RequestVoteRequest, opts ...grpc.CallOption) (*RequestVoteResponse, error) {
	out := new(RequestVoteResponse)
	if err := c.invoke(ctx, RaftService_RequestVote_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *raftServiceClient) AppendEntries(ctx context.Context, in *AppendEntriesRequest, opts ...grpc.CallOption) (*AppendEntriesResponse, error) {
	out := new(AppendEntriesResponse)
	if err := c.invoke(ctx, RaftService_AppendEntries_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *raftServiceClient) GetCommittedCmd(ctx context.Context, in *GetCommittedCmdRequest, opts ...grpc.CallOption) (*GetCommittedCmdResponse, error) {
	out := new(GetCommittedCmdResponse)
	if err := c.invoke(ctx, RaftService_GetCommittedCmd_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *raftServiceClient) GetStatus(ctx context.Context, in *GetStatusRequest, opts ...grpc.CallOption) (*StatusReport, error) {
	out := new(StatusReport)
	if err := c.invoke(ctx, RaftService_GetStatus_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *raftServiceClient) NewCommand(ctx context.Context, in *NewCommandRequest, opts ...grpc.CallOption) (*StatusReport, error) {
	out := new(StatusReport)
	if err := c.invoke(ctx, RaftService_NewCommand_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// RaftServiceServer is the server API for RaftService. Implementations must embed UnimplementedRaftServiceServer.
type RaftServiceServer interface {
	RequestVote(context.Context, *RequestVoteRequest) (*RequestVoteResponse, error)
	AppendEntries(context.Context, *AppendEntriesRequest) (*AppendEntriesResponse, error)
	GetCommittedCmd(context.Context, *GetCommittedCmdRequest) (*GetCommittedCmdResponse, error)
	GetStatus(context.Context, *GetStatusRequest) (*StatusReport, error)
	NewCommand(context.Context, *NewCommandRequest) (*StatusReport, error)
	mustEmbedUnimplementedRaftServiceServer()
}

type UnimplementedRaftServiceServer struct{}

func (UnimplementedRaftServiceServer) RequestVote(context.Context, *RequestVoteRequest) (*RequestVoteResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RequestVote not implemented")
}

func (UnimplementedRaftServiceServer) AppendEntries(context.Context, *AppendEntriesRequest) (*AppendEntriesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AppendEntries not implemented")
}

func (UnimplementedRaftServiceServer) GetCommittedCmd(context.Context, *GetCommittedCmdRequest) (*GetCommittedCmdResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetCommittedCmd not implemented")
}

func (UnimplementedRaftServiceServer) GetStatus(context.Context, *GetStatusRequest) (*StatusReport, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStatus not implemented")
}

func (UnimplementedRaftServiceServer) NewCommand(context.Context, *NewCommandRequest) (*StatusReport, error) {
	return nil, status.Error(codes.Unimplemented, "method NewCommand not implemented")
}

func (UnimplementedRaftServiceServer) mustEmbedUnimplementedRaftServiceServer() {}

func RegisterRaftServiceServer(s grpc.ServiceRegistrar, srv RaftServiceServer) {
	s.RegisterService(&RaftService_ServiceDesc, srv)
}

// unaryHandler builds the grpc.MethodDesc handler for one method. Dispatch is by explicit method name; the request
// type is fixed per method.
func unaryHandler[Req any, PReq interface {
	*Req
	Message
}, Resp any](fullMethod string, call func(RaftServiceServer, context.Context, PReq) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := PReq(new(Req))
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RaftServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RaftServiceServer), ctx, req.(PReq))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RaftService_ServiceDesc is the grpc.ServiceDesc for RaftService.
var RaftService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "raft.RaftService",
	HandlerType: (*RaftServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "RequestVote",
			Handler: unaryHandler(RaftService_RequestVote_FullMethodName,
				func(s RaftServiceServer, ctx context.Context, in *RequestVoteRequest) (*RequestVoteResponse, error) {
					return s.RequestVote(ctx, in)
				}),
		},
		{
			MethodName: "AppendEntries",
			Handler: unaryHandler(RaftService_AppendEntries_FullMethodName,
				func(s RaftServiceServer, ctx context.Context, in *AppendEntriesRequest) (*AppendEntriesResponse, error) {
					return s.AppendEntries(ctx, in)
				}),
		},
		{
			MethodName: "GetCommittedCmd",
			Handler: unaryHandler(RaftService_GetCommittedCmd_FullMethodName,
				func(s RaftServiceServer, ctx context.Context, in *GetCommittedCmdRequest) (*GetCommittedCmdResponse, error) {
					return s.GetCommittedCmd(ctx, in)
				}),
		},
		{
			MethodName: "GetStatus",
			Handler: unaryHandler(RaftService_GetStatus_FullMethodName,
				func(s RaftServiceServer, ctx context.Context, in *GetStatusRequest) (*StatusReport, error) {
					return s.GetStatus(ctx, in)
				}),
		},
		{
			MethodName: "NewCommand",
			Handler: unaryHandler(RaftService_NewCommand_FullMethodName,
				func(s RaftServiceServer, ctx context.Context, in *NewCommandRequest) (*StatusReport, error) {
					return s.NewCommand(ctx, in)
				}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "raft.proto",
}
