package capture

import (
	"context"
	"os"

	"github.com/birthmark-protocol/birthmark/pkg/errclass"
)

// Source produces the raw bytes of one capture, before any processing.
type Source interface {
	Capture(ctx context.Context) ([]byte, error)
}

// FileSource reads a raw sensor dump from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errclass.ErrSourceUnavailable.WithMessagef("read %s: %v", s.Path, err)
	}
	return data, nil
}

// BytesSource returns a fixed buffer.
type BytesSource []byte

func (s BytesSource) Capture(context.Context) ([]byte, error) {
	return []byte(s), nil
}
