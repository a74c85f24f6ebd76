package grpcrt

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/hanpama/federate/internal/selection"
)

func mustFieldSet(t *testing.T, typeName, fields string) selection.Set {
	t.Helper()
	set, err := selection.ParseFieldSet(typeName, fields)
	require.NoError(t, err)
	return set
}

func scalarField(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func repeatedMessageField(name string, number int32, typeName string) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String(typeName),
	}
}

// Build a proto file with the Subgraph contract.
// package: fsvc
// messages:
//
//	Location { int32 line = 1; int32 column = 2; }
//	PathSegment { oneof segment { string key = 1; int32 index = 2; } }
//	Error { string message = 1; repeated PathSegment path = 2; repeated Location locations = 3; bytes extensions = 4; }
//	ExecuteRequest { string query = 1; string operation_name = 2; bytes variables = 3; }
//	ExecuteResponse { bytes data = 1; repeated Error errors = 2; }
//
// service Subgraph { rpc Execute(ExecuteRequest) returns (ExecuteResponse); }
//
// withVariables=false drops ExecuteRequest.variables.
func buildExecuteDescriptor(t *testing.T, withVariables bool) protoreflect.MethodDescriptor {
	t.Helper()

	key := scalarField("key", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING)
	key.OneofIndex = proto.Int32(0)
	index := scalarField("index", 2, descriptorpb.FieldDescriptorProto_TYPE_INT32)
	index.OneofIndex = proto.Int32(0)

	requestFields := []*descriptorpb.FieldDescriptorProto{
		scalarField("query", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
		scalarField("operation_name", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
	}
	if withVariables {
		requestFields = append(requestFields, scalarField("variables", 3, descriptorpb.FieldDescriptorProto_TYPE_BYTES))
	}

	file := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("fsvc.proto"),
		Package: proto.String("fsvc"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Location"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("line", 1, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					scalarField("column", 2, descriptorpb.FieldDescriptorProto_TYPE_INT32),
				},
			},
			{
				Name:      proto.String("PathSegment"),
				Field:     []*descriptorpb.FieldDescriptorProto{key, index},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{{Name: proto.String("segment")}},
			},
			{
				Name: proto.String("Error"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("message", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					repeatedMessageField("path", 2, ".fsvc.PathSegment"),
					repeatedMessageField("locations", 3, ".fsvc.Location"),
					scalarField("extensions", 4, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				},
			},
			{
				Name:  proto.String("ExecuteRequest"),
				Field: requestFields,
			},
			{
				Name: proto.String("ExecuteResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalarField("data", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
					repeatedMessageField("errors", 2, ".fsvc.Error"),
				},
			},
		},
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name: proto.String("Subgraph"),
			Method: []*descriptorpb.MethodDescriptorProto{{
				Name:       proto.String("Execute"),
				InputType:  proto.String(".fsvc.ExecuteRequest"),
				OutputType: proto.String(".fsvc.ExecuteResponse"),
			}},
		}},
		Syntax: proto.String("proto3"),
	}
	set := &descriptorpb.FileDescriptorSet{File: []*descriptorpb.FileDescriptorProto{file}}
	files, err := protodesc.NewFiles(set)
	require.NoError(t, err)
	fd, err := files.FindFileByPath("fsvc.proto")
	require.NoError(t, err)
	svc := fd.Services().ByName("Subgraph")
	require.NotNil(t, svc)
	m := svc.Methods().ByName("Execute")
	require.NotNil(t, m)
	return m
}

// executeResponse builds an ExecuteResponse with raw JSON data.
func executeResponse(md protoreflect.MethodDescriptor, data string, errs ...protoreflect.Message) protoreflect.Message {
	out := dynamicpb.NewMessage(md.Output())
	fields := md.Output().Fields()
	if data != "" {
		out.Set(fields.ByName(FieldData), protoreflect.ValueOfBytes([]byte(data)))
	}
	if len(errs) > 0 {
		lst := out.Mutable(fields.ByName(FieldErrors)).List()
		for _, e := range errs {
			lst.Append(protoreflect.ValueOfMessage(e))
		}
	}
	return out
}

// errorMessage builds an Error whose path holds string keys and int indexes.
func errorMessage(md protoreflect.MethodDescriptor, message string, path ...any) protoreflect.Message {
	errDesc := md.Output().Fields().ByName(FieldErrors).Message()
	e := dynamicpb.NewMessage(errDesc)
	e.Set(errDesc.Fields().ByName(FieldMessage), protoreflect.ValueOfString(message))

	pathFD := errDesc.Fields().ByName(FieldPath)
	segDesc := pathFD.Message()
	lst := e.Mutable(pathFD).List()
	for _, p := range path {
		seg := dynamicpb.NewMessage(segDesc)
		switch p := p.(type) {
		case string:
			seg.Set(segDesc.Fields().ByName(FieldKey), protoreflect.ValueOfString(p))
		case int:
			seg.Set(segDesc.Fields().ByName(FieldIndex), protoreflect.ValueOfInt32(int32(p)))
		}
		lst.Append(protoreflect.ValueOfMessage(seg))
	}
	return e
}
