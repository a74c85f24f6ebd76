package protoreg

import (
	"strings"

	"github.com/jhump/protoreflect/v2/protobuilder"
	"google.golang.org/protobuf/reflect/protoreflect"
)

const (
	serviceName   protoreflect.Name = "Subgraph"
	executeMethod protoreflect.Name = "Execute"

	nameError       protoreflect.Name = "Error"
	nameLocation    protoreflect.Name = "Location"
	namePathSegment protoreflect.Name = "PathSegment"
)

// nameFile maps a proto package to its file path, e.g. federate.v1 to
// federate/v1/subgraph.proto.
func nameFile(pkg string) string {
	return strings.ReplaceAll(pkg, ".", "/") + "/" + snakeCase(string(serviceName)) + ".proto"
}

func nameRequest(method protoreflect.Name) protoreflect.Name {
	return protoreflect.Name(string(method) + "Request")
}

func nameResponse(method protoreflect.Name) protoreflect.Name {
	return protoreflect.Name(string(method) + "Response")
}

// snakeCase converts a string from CamelCase or PascalCase to snake_case.
func snakeCase(s string) string {
	result := ""
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result += "_"
		}
		result += string(r)
	}
	return strings.ToLower(result)
}

// comment renders doc as a leading comment, one space after each "//".
func comment(doc string) protobuilder.Comments {
	if doc == "" {
		return protobuilder.Comments{}
	}
	var b strings.Builder
	for line := range strings.Lines(doc) {
		b.WriteString(" ")
		b.WriteString(strings.TrimSuffix(line, "\n"))
		b.WriteString("\n")
	}
	return protobuilder.Comments{LeadingComment: b.String()}
}
