package service

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	_ "buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	jsoniter "github.com/json-iterator/go"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/structpb"
)

// requestProto declares crud.v1.Request, the typed form of a Struct request,
// with the buf.validate rules every RPC request must satisfy.
const requestProto = `
name: "crud/v1/request.proto"
package: "crud.v1"
syntax: "proto3"
dependency: "google/protobuf/struct.proto"
message_type {
  name: "Request"
  field {
    name: "object" number: 1 label: LABEL_OPTIONAL type: TYPE_STRING json_name: "object"
    options { [buf.validate.field] { string { min_len: 1 max_len: 128 } } }
  }
  field {
    name: "condition" number: 2 label: LABEL_OPTIONAL type: TYPE_STRING json_name: "condition"
  }
  field {
    name: "page_no" number: 3 label: LABEL_OPTIONAL type: TYPE_DOUBLE json_name: "pageNo"
    options { [buf.validate.field] {
      double { gte: 0 }
      cel { id: "page_no.whole" message: "must be a whole number below 2^31" expression: "this < 2147483648.0 && this == double(int(this))" }
    } }
  }
  field {
    name: "page_size" number: 4 label: LABEL_OPTIONAL type: TYPE_DOUBLE json_name: "pageSize"
    options { [buf.validate.field] {
      double { gte: 0 lte: 200 }
      cel { id: "page_size.whole" message: "must be a whole number below 2^31" expression: "this < 2147483648.0 && this == double(int(this))" }
    } }
  }
  field {
    name: "sort_by" number: 5 label: LABEL_OPTIONAL type: TYPE_STRING json_name: "sortBy"
    options { [buf.validate.field] { string { max_len: 128 } } }
  }
  field {
    name: "sort_dir" number: 6 label: LABEL_OPTIONAL type: TYPE_STRING json_name: "sortDir"
    options { [buf.validate.field] { string { in: ["", "ASC", "DESC", "asc", "desc"] } } }
  }
  field {
    name: "data" number: 7 label: LABEL_OPTIONAL type: TYPE_MESSAGE type_name: ".google.protobuf.Struct" json_name: "data"
  }
  field {
    name: "items" number: 8 label: LABEL_REPEATED type: TYPE_MESSAGE type_name: ".google.protobuf.Struct" json_name: "items"
    options { [buf.validate.field] { repeated { max_items: 1000 } } }
  }
}
`

var requestDesc = mustRequestDescriptor()

func mustRequestDescriptor() protoreflect.MessageDescriptor {
	var fdp descriptorpb.FileDescriptorProto
	if err := prototext.Unmarshal([]byte(requestProto), &fdp); err != nil {
		panic(fmt.Sprintf("request descriptor: %v", err))
	}
	fd, err := protodesc.NewFile(&fdp, protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("request descriptor: %v", err))
	}
	return fd.Messages().ByName("Request")
}

// BindRequest copies a Struct request onto crud.v1.Request so that its
// validation rules apply. Other messages are returned unchanged.
func BindRequest(msg proto.Message) (proto.Message, error) {
	st, ok := msg.(*structpb.Struct)
	if !ok {
		return msg, nil
	}
	return bindRequest(st)
}

func bindRequest(st *structpb.Struct) (*dynamicpb.Message, error) {
	req := dynamicpb.NewMessage(requestDesc)
	fields := requestDesc.Fields()

	for key, v := range st.GetFields() {
		fd := fields.ByJSONName(key)
		if fd == nil {
			return nil, fmt.Errorf("unknown request field %q", key)
		}
		if _, null := v.GetKind().(*structpb.Value_NullValue); null {
			continue
		}

		if fd.Name() == "condition" {
			text, err := conditionText(v)
			if err != nil {
				return nil, err
			}
			req.Set(fd, protoreflect.ValueOfString(text))
			continue
		}

		switch fd.Kind() {
		case protoreflect.StringKind:
			s, ok := v.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return nil, fmt.Errorf("%s must be a string", key)
			}
			req.Set(fd, protoreflect.ValueOfString(s.StringValue))
		case protoreflect.DoubleKind:
			n, ok := v.GetKind().(*structpb.Value_NumberValue)
			if !ok {
				return nil, fmt.Errorf("%s must be a number", key)
			}
			req.Set(fd, protoreflect.ValueOfFloat64(n.NumberValue))
		case protoreflect.MessageKind:
			if fd.IsList() {
				list, err := structList(req.NewField(fd).List(), v)
				if err != nil {
					return nil, fmt.Errorf("%s %w", key, err)
				}
				req.Set(fd, protoreflect.ValueOfList(list))
				continue
			}
			st, ok := v.GetKind().(*structpb.Value_StructValue)
			if !ok {
				return nil, fmt.Errorf("%s must be an object", key)
			}
			req.Set(fd, protoreflect.ValueOfMessage(st.StructValue.ProtoReflect()))
		}
	}
	return req, nil
}

func structList(list protoreflect.List, v *structpb.Value) (protoreflect.List, error) {
	lv, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, errors.New("must be a list of objects")
	}
	for _, item := range lv.ListValue.GetValues() {
		st, ok := item.GetKind().(*structpb.Value_StructValue)
		if !ok {
			return nil, errors.New("must be a list of objects")
		}
		list.Append(protoreflect.ValueOfMessage(st.StructValue.ProtoReflect()))
	}
	return list, nil
}

// conditionText returns the condition as JSON text. A Struct condition is
// re-encoded with whole numbers written as integers.
func conditionText(v *structpb.Value) (string, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_StructValue:
		tree, err := exactNumbers(k.StructValue.AsMap())
		if err != nil {
			return "", fmt.Errorf("condition: %w", err)
		}
		b, err := json.Marshal(tree)
		if err != nil {
			return "", fmt.Errorf("condition: %w", err)
		}
		return string(b), nil
	}
	return "", errors.New("condition must be a string or an object")
}

// Struct numbers are doubles, so integers are exact only up to 2^53.
const maxExactInteger = 1 << 53

func exactNumbers(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			n, err := exactNumbers(e)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			n, err := exactNumbers(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case float64:
		return exactNumber(t)
	}
	return v, nil
}

func exactNumber(f float64) (jsoniter.Number, error) {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return "", fmt.Errorf("number %v has no JSON form", f)
	case f != math.Trunc(f):
		return jsoniter.Number(strconv.FormatFloat(f, 'f', -1, 64)), nil
	case math.Abs(f) > maxExactInteger:
		return "", fmt.Errorf("integer %.0f is beyond 2^53 and cannot be carried exactly; send the condition as a JSON string", f)
	}
	return jsoniter.Number(strconv.FormatInt(int64(f), 10)), nil
}
