package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	jsoniter "github.com/json-iterator/go"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atlekbai/crud_registry/internal/query"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// CrudServiceName is the fully-qualified RPC service name.
	CrudServiceName = "crud.v1.CrudService"

	GetOneProcedure     = "/" + CrudServiceName + "/GetOne"
	GetManyProcedure    = "/" + CrudServiceName + "/GetMany"
	CountProcedure      = "/" + CrudServiceName + "/Count"
	DeleteManyProcedure = "/" + CrudServiceName + "/DeleteMany"
	CreateOneProcedure  = "/" + CrudServiceName + "/CreateOne"
	CreateManyProcedure = "/" + CrudServiceName + "/CreateMany"
	UpdateOneProcedure  = "/" + CrudServiceName + "/UpdateOne"
	UpdateManyProcedure = "/" + CrudServiceName + "/UpdateMany"
)

// ErrorCodeHeader carries the AppError code on RPC errors.
const ErrorCodeHeader = "X-Error-Code"

// RPC exposes CrudService over connect. Requests and responses are
// google.protobuf.Struct messages:
//
//	{"object": "books", "condition": {...} | "...", "pageNo": 1, "pageSize": 20, "sortBy": "id", "sortDir": "ASC"}
//	{"object": "books", "data": {...}}
//	{"object": "books", "items": [{...}, ...]}
//
// Requests bind to crud.v1.Request (see BindRequest), whose rules the
// validation interceptor enforces.
type RPC struct {
	svc *CrudService
}

func NewRPC(svc *CrudService) *RPC {
	return &RPC{svc: svc}
}

func (r *RPC) RegisterHandler(interceptors ...connect.Interceptor) (string, http.Handler) {
	opts := []connect.HandlerOption{connect.WithInterceptors(interceptors...)}

	mux := http.NewServeMux()
	mux.Handle(GetOneProcedure, connect.NewUnaryHandler(GetOneProcedure, r.GetOne, opts...))
	mux.Handle(GetManyProcedure, connect.NewUnaryHandler(GetManyProcedure, r.GetMany, opts...))
	mux.Handle(CountProcedure, connect.NewUnaryHandler(CountProcedure, r.Count, opts...))
	mux.Handle(DeleteManyProcedure, connect.NewUnaryHandler(DeleteManyProcedure, r.DeleteMany, opts...))
	mux.Handle(CreateOneProcedure, connect.NewUnaryHandler(CreateOneProcedure, r.CreateOne, opts...))
	mux.Handle(CreateManyProcedure, connect.NewUnaryHandler(CreateManyProcedure, r.CreateMany, opts...))
	mux.Handle(UpdateOneProcedure, connect.NewUnaryHandler(UpdateOneProcedure, r.UpdateOne, opts...))
	mux.Handle(UpdateManyProcedure, connect.NewUnaryHandler(UpdateManyProcedure, r.UpdateMany, opts...))
	return "/" + CrudServiceName + "/", mux
}

func (r *RPC) GetOne(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	in, err := decodeRequest(req.Msg)
	if err != nil {
		return nil, err
	}
	rec, err := r.svc.GetOne(ctx, in.object, in.condition)
	if err != nil {
		return nil, connectError(err)
	}
	return respond(map[string]any{"data": rec})
}

func (r *RPC) GetMany(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	in, err := decodeRequest(req.Msg)
	if err != nil {
		return nil, err
	}
	obj, err := r.svc.Object(in.object)
	if err != nil {
		return nil, connectError(err)
	}
	page, err := query.NewPageParams(in.pageNo, in.pageSize, in.sortBy, in.sortDir, obj)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	result, err := r.svc.GetMany(ctx, in.object, in.condition, page)
	if err != nil {
		return nil, connectError(err)
	}
	return respond(result)
}

func (r *RPC) Count(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	in, err := decodeRequest(req.Msg)
	if err != nil {
		return nil, err
	}
	n, err := r.svc.Count(ctx, in.object, in.condition)
	if err != nil {
		return nil, connectError(err)
	}
	return respond(map[string]any{"count": n})
}

func (r *RPC) DeleteMany(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	in, err := decodeRequest(req.Msg)
	if err != nil {
		return nil, err
	}
	records, err := r.svc.DeleteMany(ctx, in.object, in.condition)
	if err != nil {
		return nil, connectError(err)
	}
	return respond(map[string]any{"data": records})
}

func (r *RPC) CreateOne(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	in, err := decodeRequest(req.Msg)
	if err != nil {
		return nil, err
	}
	if in.data == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("data is required"))
	}
	rec, err := r.svc.CreateOne(ctx, in.object, in.data)
	if err != nil {
		return nil, connectError(err)
	}
	return respond(map[string]any{"data": rec})
}

func (r *RPC) CreateMany(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	in, err := decodeRequest(req.Msg)
	if err != nil {
		return nil, err
	}
	records, err := r.svc.CreateMany(ctx, in.object, in.items)
	if err != nil {
		return nil, connectError(err)
	}
	return respond(map[string]any{"data": records})
}

func (r *RPC) UpdateOne(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	in, err := decodeRequest(req.Msg)
	if err != nil {
		return nil, err
	}
	if in.data == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("data is required"))
	}
	rec, err := r.svc.UpdateOne(ctx, in.object, in.data)
	if err != nil {
		return nil, connectError(err)
	}
	return respond(map[string]any{"data": rec})
}

func (r *RPC) UpdateMany(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	in, err := decodeRequest(req.Msg)
	if err != nil {
		return nil, err
	}
	records, err := r.svc.UpdateMany(ctx, in.object, in.items)
	if err != nil {
		return nil, connectError(err)
	}
	return respond(map[string]any{"data": records})
}

type rpcRequest struct {
	object    string
	condition string
	pageNo    int
	pageSize  int
	sortBy    string
	sortDir   string
	data      Values
	items     []Values
}

func decodeRequest(msg *structpb.Struct) (rpcRequest, error) {
	req, err := bindRequest(msg)
	if err != nil {
		return rpcRequest{}, connect.NewError(connect.CodeInvalidArgument, err)
	}
	fields := req.Descriptor().Fields()
	get := func(name protoreflect.Name) protoreflect.Value {
		return req.Get(fields.ByName(name))
	}

	in := rpcRequest{
		object:    get("object").String(),
		condition: get("condition").String(),
		pageNo:    int(get("page_no").Float()),
		pageSize:  int(get("page_size").Float()),
		sortBy:    get("sort_by").String(),
		sortDir:   get("sort_dir").String(),
	}
	if in.object == "" {
		return in, connect.NewError(connect.CodeInvalidArgument, errors.New("object is required"))
	}

	// Binding has checked the shapes of data and items.
	if data := msg.GetFields()["data"].GetStructValue(); data != nil {
		in.data = data.AsMap()
	}
	for _, item := range msg.GetFields()["items"].GetListValue().GetValues() {
		in.items = append(in.items, item.GetStructValue().AsMap())
	}
	return in, nil
}

// respond converts v to a Struct through its JSON form.
func respond(v any) (*connect.Response[structpb.Struct], error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("marshal result: %w", err))
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("marshal result: %w", err))
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("marshal result: %w", err))
	}
	return connect.NewResponse(st), nil
}

func connectError(err error) *connect.Error {
	appErr := AsAppError(err)

	code := connect.CodeInvalidArgument
	switch appErr.Code {
	case NotFound:
		code = connect.CodeNotFound
	case AlreadyDeleted:
		code = connect.CodeFailedPrecondition
	case AlreadyFound:
		code = connect.CodeAlreadyExists
	case InternalSystemError:
		code = connect.CodeInternal
	}

	cerr := connect.NewError(code, errors.New(appErr.Message))
	cerr.Meta().Set(ErrorCodeHeader, string(appErr.Code))
	return cerr
}
