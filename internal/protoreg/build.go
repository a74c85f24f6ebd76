package protoreg

import (
	"github.com/hanpama/federate/internal/grpcrt"
	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// DefaultPackage is the proto package used when Build is given none.
const DefaultPackage = "federate.v1"

// Build creates the Subgraph service contract in proto package pkg and
// returns a grpcrt.Registry over it.
func Build(pkg string) (*Registry, error) {
	if pkg == "" {
		pkg = DefaultPackage
	}

	b := &builder{file: protobuilder.NewFile(nameFile(pkg))}
	b.file.SetPackageName(protoreflect.FullName(pkg))
	b.file.SetSyntax(protoreflect.Proto3)

	location := b.addMessage(nameLocation, "Location of an error in the operation text.",
		fieldSpec{name: grpcrt.FieldLine, typ: scalar(protoreflect.Int32Kind)},
		fieldSpec{name: grpcrt.FieldColumn, typ: scalar(protoreflect.Int32Kind)},
	)
	segment := b.addPathSegment()
	gqlError := b.addMessage(nameError, "GraphQL error reported by the subgraph.",
		fieldSpec{name: grpcrt.FieldMessage, typ: scalar(protoreflect.StringKind)},
		fieldSpec{name: grpcrt.FieldPath, typ: protobuilder.FieldTypeMessage(segment), repeated: true,
			doc: "Path relative to the operation root."},
		fieldSpec{name: grpcrt.FieldLocations, typ: protobuilder.FieldTypeMessage(location), repeated: true},
		fieldSpec{name: grpcrt.FieldExtensions, typ: scalar(protoreflect.BytesKind),
			doc: "JSON object."},
	)
	request := b.addMessage(nameRequest(executeMethod), "",
		fieldSpec{name: grpcrt.FieldQuery, typ: scalar(protoreflect.StringKind),
			doc: "Operation text."},
		fieldSpec{name: grpcrt.FieldOperationName, typ: scalar(protoreflect.StringKind)},
		fieldSpec{name: grpcrt.FieldVariables, typ: scalar(protoreflect.BytesKind),
			doc: "JSON object holding the operation variables, including\nrepresentations for _entities operations."},
	)
	response := b.addMessage(nameResponse(executeMethod), "",
		fieldSpec{name: grpcrt.FieldData, typ: scalar(protoreflect.BytesKind),
			doc: "JSON value of the data entry. Empty means null."},
		fieldSpec{name: grpcrt.FieldErrors, typ: protobuilder.FieldTypeMessage(gqlError), repeated: true},
	)

	sb := protobuilder.NewService(serviceName)
	sb.SetComments(comment("Subgraph executes GraphQL operations sent by the federation gateway."))
	mb := protobuilder.NewMethod(
		executeMethod,
		protobuilder.RpcTypeMessage(request, false),
		protobuilder.RpcTypeMessage(response, false),
	)
	mb.SetComments(comment("Execute runs one operation and returns its data and errors."))
	sb.AddMethod(mb)
	b.file.AddService(sb)

	fd, err := b.file.Build()
	if err != nil {
		return nil, err
	}
	svc := fd.Services().ByName(serviceName)
	return &Registry{
		fileDescriptors: []protoreflect.FileDescriptor{fd},
		execute:         svc.Methods().ByName(executeMethod),
	}, nil
}

type builder struct {
	file *protobuilder.FileBuilder
}

type fieldSpec struct {
	name     protoreflect.Name
	typ      *protobuilder.FieldType
	repeated bool
	doc      string
}

func scalar(kind protoreflect.Kind) *protobuilder.FieldType {
	return protobuilder.FieldTypeScalar(kind)
}

func (b *builder) addMessage(name protoreflect.Name, doc string, fields ...fieldSpec) *protobuilder.MessageBuilder {
	mb := protobuilder.NewMessage(name)
	mb.SetComments(comment(doc))

	fieldBuilders := make([]*protobuilder.FieldBuilder, 0, len(fields))
	for _, f := range fields {
		fb := protobuilder.NewField(f.name, f.typ)
		fb.SetComments(comment(f.doc))
		if f.repeated {
			fb.SetRepeated()
		}
		mb.AddField(fb)
		fieldBuilders = append(fieldBuilders, fb)
	}
	allocateFieldNumbers(fieldBuilders)
	b.file.AddMessage(mb)
	return mb
}

// addPathSegment adds the message for one error path element, either a
// field name or a list index.
func (b *builder) addPathSegment() *protobuilder.MessageBuilder {
	mb := protobuilder.NewMessage(namePathSegment)
	mb.SetComments(comment("One element of an error path."))

	oneOfBuilder := protobuilder.NewOneof(protoreflect.Name("segment"))
	mb.AddOneOf(oneOfBuilder)

	key := protobuilder.NewField(grpcrt.FieldKey, scalar(protoreflect.StringKind))
	index := protobuilder.NewField(grpcrt.FieldIndex, scalar(protoreflect.Int32Kind))
	oneOfBuilder.AddChoice(key)
	oneOfBuilder.AddChoice(index)
	allocateFieldNumbers([]*protobuilder.FieldBuilder{key, index})

	b.file.AddMessage(mb)
	return mb
}
