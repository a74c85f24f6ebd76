package protoreg_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/hanpama/federate/internal/grpcrt"
	"github.com/hanpama/federate/internal/protoreg"
)

func TestBuild(t *testing.T) {
	reg, err := protoreg.Build("")
	require.NoError(t, err)

	files := reg.GetAllServiceFiles()
	require.Len(t, files, 1)
	assert.Equal(t, "federate/v1/subgraph.proto", files[0].Path())
	assert.Equal(t, protoreflect.FullName("federate.v1"), files[0].Package())

	md := reg.GetExecuteDescriptor()
	require.NotNil(t, md)
	assert.Equal(t, protoreflect.FullName("federate.v1.Subgraph.Execute"), md.FullName())
	assert.Equal(t, protoreflect.Name("ExecuteRequest"), md.Input().Name())
	assert.Equal(t, protoreflect.Name("ExecuteResponse"), md.Output().Name())
	assert.False(t, md.IsStreamingClient())
	assert.False(t, md.IsStreamingServer())
}

func TestBuild_Fields(t *testing.T) {
	reg, err := protoreg.Build("")
	require.NoError(t, err)
	md := reg.GetExecuteDescriptor()

	tests := []struct {
		name     string
		message  protoreflect.MessageDescriptor
		field    protoreflect.Name
		kind     protoreflect.Kind
		repeated bool
	}{
		{"request query", md.Input(), grpcrt.FieldQuery, protoreflect.StringKind, false},
		{"request operation name", md.Input(), grpcrt.FieldOperationName, protoreflect.StringKind, false},
		{"request variables", md.Input(), grpcrt.FieldVariables, protoreflect.BytesKind, false},
		{"response data", md.Output(), grpcrt.FieldData, protoreflect.BytesKind, false},
		{"response errors", md.Output(), grpcrt.FieldErrors, protoreflect.MessageKind, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := tt.message.Fields().ByName(tt.field)
			require.NotNil(t, fd, "field %s missing", tt.field)
			assert.Equal(t, tt.kind, fd.Kind())
			assert.Equal(t, tt.repeated, fd.IsList())
		})
	}

	errMsg := md.Output().Fields().ByName(grpcrt.FieldErrors).Message()
	path := errMsg.Fields().ByName(grpcrt.FieldPath)
	require.NotNil(t, path)
	assert.True(t, path.IsList())

	segment := path.Message()
	require.Equal(t, 1, segment.Oneofs().Len())
	oneof := segment.Oneofs().Get(0)
	assert.Equal(t, 2, oneof.Fields().Len())
	assert.Equal(t, protoreflect.StringKind, segment.Fields().ByName(grpcrt.FieldKey).Kind())
	assert.Equal(t, protoreflect.Int32Kind, segment.Fields().ByName(grpcrt.FieldIndex).Kind())
}

func TestBuild_CustomPackage(t *testing.T) {
	reg, err := protoreg.Build("acme.gateway.v2")
	require.NoError(t, err)
	assert.Equal(t, "acme/gateway/v2/subgraph.proto", reg.GetAllServiceFiles()[0].Path())
	assert.Equal(t, protoreflect.FullName("acme.gateway.v2.Subgraph"), reg.GetExecuteDescriptor().Parent().FullName())
}

func TestBuild_FieldNumbersAreStable(t *testing.T) {
	a, err := protoreg.Build("")
	require.NoError(t, err)
	b, err := protoreg.Build("")
	require.NoError(t, err)

	fa := a.GetExecuteDescriptor().Input().Fields()
	fb := b.GetExecuteDescriptor().Input().Fields()
	require.Equal(t, fa.Len(), fb.Len())
	for i := 0; i < fa.Len(); i++ {
		assert.Equal(t, fa.Get(i).Number(), fb.ByName(fa.Get(i).Name()).Number())
		assert.NotZero(t, fa.Get(i).Number())
	}
}

func TestRender(t *testing.T) {
	reg, err := protoreg.Build("")
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, protoreg.Render(reg, dir))

	written, err := os.ReadFile(filepath.Join(dir, "federate", "v1", "subgraph.proto"))
	require.NoError(t, err)

	var printed bytes.Buffer
	require.NoError(t, protoreg.Print(reg, &printed))
	assert.Equal(t, printed.String(), string(written))

	assert.Contains(t, string(written), "package federate.v1;")
	assert.Contains(t, string(written), "service Subgraph")
	assert.Contains(t, string(written), "rpc Execute")
	assert.Contains(t, string(written), "oneof segment")
}
