package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"buf.build/go/protovalidate"
	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/atlekbai/crud_registry/internal/server"
)

func newRPCServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc, _ := newTestService(t)
	validator, err := protovalidate.New()
	require.NoError(t, err)
	path, h := NewRPC(svc).RegisterHandler(server.ValidationInterceptor(validator, BindRequest))
	mux := http.NewServeMux()
	mux.Handle(path, h)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, procedure string, req map[string]any) (*structpb.Struct, error) {
	t.Helper()
	msg, err := structpb.NewStruct(req)
	require.NoError(t, err)
	client := connect.NewClient[structpb.Struct, structpb.Struct](srv.Client(), srv.URL+procedure)
	resp, err := client.CallUnary(context.Background(), connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func TestRPCGetOne(t *testing.T) {
	srv := newRPCServer(t)

	resp, err := call(t, srv, GetOneProcedure, map[string]any{
		"object":    "books",
		"condition": map[string]any{"op": "=", "lhs": "press", "rhs": "Lumen"},
	})
	require.NoError(t, err)
	data := resp.AsMap()["data"].(map[string]any)
	assert.Equal(t, float64(6), data["id"])
	assert.Equal(t, "Paper Lanterns", data["title"])
	assert.Equal(t, "2000-12-24", data["publishDate"])
}

func TestRPCGetMany(t *testing.T) {
	srv := newRPCServer(t)

	resp, err := call(t, srv, GetManyProcedure, map[string]any{
		"object":    "books",
		"condition": `{"op":"like","lhs":"authors.fullName","rhs":"Ahmad%"}`,
		"pageSize":  2,
		"sortBy":    "publishDate",
		"sortDir":   "DESC",
	})
	require.NoError(t, err)
	page := resp.AsMap()
	assert.Equal(t, float64(3), page["totalItems"])
	assert.Equal(t, float64(2), page["totalPages"])
	assert.Equal(t, float64(1), page["currentPage"])

	data := page["data"].([]any)
	require.Len(t, data, 2)
	assert.Equal(t, "Northern Cartography", data[0].(map[string]any)["title"])
	assert.Equal(t, "Silent Rivers", data[1].(map[string]any)["title"])
}

func TestRPCCountAndDeleteMany(t *testing.T) {
	srv := newRPCServer(t)

	resp, err := call(t, srv, CountProcedure, map[string]any{"object": "authors"})
	require.NoError(t, err)
	assert.Equal(t, float64(3), resp.AsMap()["count"])

	resp, err = call(t, srv, DeleteManyProcedure, map[string]any{
		"object":    "authors",
		"condition": map[string]any{"op": "<", "lhs": "birthDate", "rhs": "1945-01-01", "type": "Date"},
	})
	require.NoError(t, err)
	data := resp.AsMap()["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "Ahmad Salem", data[0].(map[string]any)["fullName"])
	assert.Equal(t, true, data[0].(map[string]any)["deleted"])

	resp, err = call(t, srv, CountProcedure, map[string]any{"object": "authors"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), resp.AsMap()["count"])
}

func TestRPCErrors(t *testing.T) {
	srv := newRPCServer(t)

	tests := []struct {
		name      string
		procedure string
		req       map[string]any
		code      connect.Code
		errorCode string
	}{
		{
			name:      "missing object",
			procedure: CountProcedure,
			req:       map[string]any{},
			code:      connect.CodeInvalidArgument,
		},
		{
			name:      "unknown object",
			procedure: CountProcedure,
			req:       map[string]any{"object": "publishers"},
			code:      connect.CodeNotFound,
			errorCode: string(NotFound),
		},
		{
			name:      "bad condition",
			procedure: GetOneProcedure,
			req:       map[string]any{"object": "books", "condition": `{"op":"~","lhs":"id","rhs":1}`},
			code:      connect.CodeInvalidArgument,
			errorCode: string(InvalidInput),
		},
		{
			name:      "no match",
			procedure: GetOneProcedure,
			req:       map[string]any{"object": "books", "condition": `{"op":"=","lhs":"id","rhs":42}`},
			code:      connect.CodeNotFound,
			errorCode: string(NotFound),
		},
		{
			name:      "condition of wrong kind",
			procedure: CountProcedure,
			req:       map[string]any{"object": "books", "condition": 7},
			code:      connect.CodeInvalidArgument,
		},
		{
			name:      "bad sort field",
			procedure: GetManyProcedure,
			req:       map[string]any{"object": "books", "sortBy": "isbn"},
			code:      connect.CodeInvalidArgument,
		},
		{
			name:      "fractional page number",
			procedure: GetManyProcedure,
			req:       map[string]any{"object": "books", "pageNo": 1.5},
			code:      connect.CodeInvalidArgument,
		},
		{
			name:      "negative page size",
			procedure: GetManyProcedure,
			req:       map[string]any{"object": "books", "pageSize": -1},
			code:      connect.CodeInvalidArgument,
		},
		{
			name:      "unknown sort direction",
			procedure: GetManyProcedure,
			req:       map[string]any{"object": "books", "sortDir": "sideways"},
			code:      connect.CodeInvalidArgument,
		},
		{
			name:      "unknown request field",
			procedure: CountProcedure,
			req:       map[string]any{"object": "books", "filter": "x"},
			code:      connect.CodeInvalidArgument,
		},
		{
			name:      "object of wrong kind",
			procedure: CountProcedure,
			req:       map[string]any{"object": 3},
			code:      connect.CodeInvalidArgument,
		},
		{
			name:      "integer too large for a struct condition",
			procedure: CountProcedure,
			req: map[string]any{"object": "books",
				"condition": map[string]any{"op": "=", "lhs": "id", "rhs": float64(1<<53 + 2)}},
			code: connect.CodeInvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, srv, tt.procedure, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
			if tt.errorCode != "" {
				var cerr *connect.Error
				require.ErrorAs(t, err, &cerr)
				assert.Equal(t, tt.errorCode, cerr.Meta().Get(ErrorCodeHeader))
			}
		})
	}
}

func TestRPCStructConditionKeepsIntegers(t *testing.T) {
	srv := newRPCServer(t)

	resp, err := call(t, srv, CountProcedure, map[string]any{
		"object": "books",
		"condition": map[string]any{"op": "&&",
			"lhs": map[string]any{"op": "<", "lhs": "noPages", "rhs": 300},
			"rhs": map[string]any{"op": "in", "lhs": "id", "rhs": 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1), resp.AsMap()["count"])

	// A fractional value stays a float and is rejected by the integer column coercion.
	_, err = call(t, srv, CountProcedure, map[string]any{
		"object":    "books",
		"condition": map[string]any{"op": "<", "lhs": "noPages", "rhs": 299.5},
	})
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestRPCWrites(t *testing.T) {
	srv := newRPCServer(t)

	resp, err := call(t, srv, CreateOneProcedure, map[string]any{
		"object": "authors",
		"data":   map[string]any{"fullName": "Ida Lind", "books": []any{1, 4}},
	})
	require.NoError(t, err)
	author := resp.AsMap()["data"].(map[string]any)
	assert.Equal(t, float64(5), author["id"])
	assert.Equal(t, false, author["deleted"])

	resp, err = call(t, srv, CreateManyProcedure, map[string]any{
		"object": "awards",
		"items":  []any{map[string]any{"name": "Fern Prize", "author": 5}, map[string]any{"name": "Moss Prize"}},
	})
	require.NoError(t, err)
	assert.Len(t, resp.AsMap()["data"], 2)

	resp, err = call(t, srv, UpdateOneProcedure, map[string]any{
		"object": "authors",
		"data":   map[string]any{"id": 5, "birthDate": "1979-09-30"},
	})
	require.NoError(t, err)
	assert.Equal(t, "1979-09-30", resp.AsMap()["data"].(map[string]any)["birthDate"])

	resp, err = call(t, srv, UpdateManyProcedure, map[string]any{
		"object": "books",
		"items":  []any{map[string]any{"id": 1, "volume": 2}},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(2), resp.AsMap()["data"].([]any)[0].(map[string]any)["volume"])

	resp, err = call(t, srv, CountProcedure, map[string]any{
		"object":    "books",
		"condition": map[string]any{"op": "=", "lhs": "authors.fullName", "rhs": "Ida Lind"},
	})
	require.NoError(t, err)
	assert.Equal(t, float64(2), resp.AsMap()["count"])
}

func TestRPCWriteErrors(t *testing.T) {
	srv := newRPCServer(t)

	tests := []struct {
		name      string
		procedure string
		req       map[string]any
		code      connect.Code
		errorCode string
	}{
		{"duplicate name", CreateOneProcedure,
			map[string]any{"object": "authors", "data": map[string]any{"fullName": "John Doe"}},
			connect.CodeAlreadyExists, "5007"},
		{"missing data", CreateOneProcedure,
			map[string]any{"object": "authors"}, connect.CodeInvalidArgument, ""},
		{"data not an object", UpdateOneProcedure,
			map[string]any{"object": "authors", "data": "x"}, connect.CodeInvalidArgument, ""},
		{"items not objects", CreateManyProcedure,
			map[string]any{"object": "authors", "items": []any{1}}, connect.CodeInvalidArgument, ""},
		{"empty batch", UpdateManyProcedure,
			map[string]any{"object": "authors", "items": []any{}}, connect.CodeInvalidArgument, "5003"},
		{"required field", CreateManyProcedure,
			map[string]any{"object": "books", "items": []any{map[string]any{"press": "Orbit"}}},
			connect.CodeInvalidArgument, "5000"},
		{"deleted record", UpdateOneProcedure,
			map[string]any{"object": "authors", "data": map[string]any{"id": 4, "fullName": "X"}},
			connect.CodeNotFound, "5004"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, srv, tt.procedure, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
			if tt.errorCode != "" {
				var cerr *connect.Error
				require.ErrorAs(t, err, &cerr)
				assert.Equal(t, tt.errorCode, cerr.Meta().Get(ErrorCodeHeader))
			}
		})
	}
}
