package grpcrt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/hanpama/federate/internal/graphql"
	"github.com/hanpama/federate/internal/value"
)

// Field names of the Subgraph contract messages.
const (
	FieldQuery         protoreflect.Name = "query"
	FieldOperationName protoreflect.Name = "operation_name"
	FieldVariables     protoreflect.Name = "variables"

	FieldData   protoreflect.Name = "data"
	FieldErrors protoreflect.Name = "errors"

	FieldMessage    protoreflect.Name = "message"
	FieldPath       protoreflect.Name = "path"
	FieldLocations  protoreflect.Name = "locations"
	FieldExtensions protoreflect.Name = "extensions"

	FieldKey   protoreflect.Name = "key"
	FieldIndex protoreflect.Name = "index"

	FieldLine   protoreflect.Name = "line"
	FieldColumn protoreflect.Name = "column"
)

// ErrContract reports a descriptor that does not have the expected shape.
var ErrContract = errors.New("grpcrt: descriptor does not match the subgraph contract")

func field(md protoreflect.MessageDescriptor, name protoreflect.Name, kind protoreflect.Kind) (protoreflect.FieldDescriptor, error) {
	fd := md.Fields().ByName(name)
	if fd == nil || fd.Kind() != kind {
		return nil, fmt.Errorf("%w: %s.%s", ErrContract, md.FullName(), name)
	}
	return fd, nil
}

// encodeRequest builds the Execute request message for req.
func encodeRequest(md protoreflect.MethodDescriptor, req *graphql.Request) (protoreflect.Message, error) {
	in := md.Input()
	queryFD, err := field(in, FieldQuery, protoreflect.StringKind)
	if err != nil {
		return nil, err
	}
	nameFD, err := field(in, FieldOperationName, protoreflect.StringKind)
	if err != nil {
		return nil, err
	}
	varsFD, err := field(in, FieldVariables, protoreflect.BytesKind)
	if err != nil {
		return nil, err
	}

	msg := dynamicpb.NewMessage(in)
	msg.Set(queryFD, protoreflect.ValueOfString(req.Query))
	if req.OperationName != "" {
		msg.Set(nameFD, protoreflect.ValueOfString(req.OperationName))
	}
	if len(req.Variables) > 0 {
		b, err := json.Marshal(req.Variables)
		if err != nil {
			return nil, fmt.Errorf("encode variables: %w", err)
		}
		msg.Set(varsFD, protoreflect.ValueOfBytes(b))
	}
	return msg, nil
}

// decodeResponse converts an Execute response message into a GraphQL
// response. Error paths stay relative; the fetch unit rebases them.
func decodeResponse(msg protoreflect.Message) (*graphql.Response, error) {
	md := msg.Descriptor()
	dataFD, err := field(md, FieldData, protoreflect.BytesKind)
	if err != nil {
		return nil, err
	}
	errorsFD, err := field(md, FieldErrors, protoreflect.MessageKind)
	if err != nil {
		return nil, err
	}

	resp := &graphql.Response{}
	if b := msg.Get(dataFD).Bytes(); len(b) > 0 {
		if resp.Data, err = decodeJSON(b); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
	}

	list := msg.Get(errorsFD).List()
	for i := 0; i < list.Len(); i++ {
		e, err := decodeError(list.Get(i).Message())
		if err != nil {
			return nil, fmt.Errorf("decode error %d: %w", i, err)
		}
		resp.Errors = append(resp.Errors, e)
	}
	return resp, nil
}

func decodeError(msg protoreflect.Message) (graphql.Error, error) {
	md := msg.Descriptor()
	var out graphql.Error

	messageFD, err := field(md, FieldMessage, protoreflect.StringKind)
	if err != nil {
		return out, err
	}
	out.Message = msg.Get(messageFD).String()

	if fd := md.Fields().ByName(FieldPath); fd != nil && fd.Kind() == protoreflect.MessageKind {
		segments := msg.Get(fd).List()
		for i := 0; i < segments.Len(); i++ {
			el, err := decodeSegment(segments.Get(i).Message())
			if err != nil {
				return out, err
			}
			out.Path = append(out.Path, el)
		}
	}

	if fd := md.Fields().ByName(FieldLocations); fd != nil && fd.Kind() == protoreflect.MessageKind {
		locations := msg.Get(fd).List()
		for i := 0; i < locations.Len(); i++ {
			loc := locations.Get(i).Message()
			ld := loc.Descriptor()
			lineFD, err := field(ld, FieldLine, protoreflect.Int32Kind)
			if err != nil {
				return out, err
			}
			colFD, err := field(ld, FieldColumn, protoreflect.Int32Kind)
			if err != nil {
				return out, err
			}
			out.Locations = append(out.Locations, graphql.Location{
				Line:   int(loc.Get(lineFD).Int()),
				Column: int(loc.Get(colFD).Int()),
			})
		}
	}

	if fd := md.Fields().ByName(FieldExtensions); fd != nil && fd.Kind() == protoreflect.BytesKind {
		if b := msg.Get(fd).Bytes(); len(b) > 0 {
			v, err := decodeJSON(b)
			if err != nil {
				return out, fmt.Errorf("decode extensions: %w", err)
			}
			ext, ok := v.(map[string]any)
			if !ok {
				return out, fmt.Errorf("extensions must be a JSON object, got %T", v)
			}
			out.Extensions = ext
		}
	}
	return out, nil
}

func decodeSegment(msg protoreflect.Message) (value.PathElement, error) {
	md := msg.Descriptor()
	keyFD, err := field(md, FieldKey, protoreflect.StringKind)
	if err != nil {
		return nil, err
	}
	indexFD, err := field(md, FieldIndex, protoreflect.Int32Kind)
	if err != nil {
		return nil, err
	}
	switch {
	case msg.Has(keyFD):
		return msg.Get(keyFD).String(), nil
	case msg.Has(indexFD):
		return int(msg.Get(indexFD).Int()), nil
	default:
		return nil, errors.New("empty path segment")
	}
}

// decodeJSON decodes b keeping numbers as json.Number, like
// graphql.DecodeResponse.
func decodeJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
