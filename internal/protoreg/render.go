package protoreg

import (
	"io"
	"os"
	"path"

	"github.com/jhump/protoreflect/v2/protoprint"
)

// Render writes the proto definitions of r below outDir, one file per
// descriptor at its package path.
func Render(r *Registry, outDir string) error {
	pp := protoprint.Printer{}

	for _, fd := range r.GetAllServiceFiles() {
		fp := path.Join(outDir, fd.Path())
		if err := os.MkdirAll(path.Dir(fp), 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(fp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		err = pp.PrintProtoFile(fd, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Print writes the proto definitions of r to w.
func Print(r *Registry, w io.Writer) error {
	pp := protoprint.Printer{}
	for _, fd := range r.GetAllServiceFiles() {
		if err := pp.PrintProtoFile(fd, w); err != nil {
			return err
		}
	}
	return nil
}
