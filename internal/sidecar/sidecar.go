// Package sidecar stores a ledger Record next to the media file it
// describes, as <media>.birthmark.json or <media>.birthmark.cbor.
package sidecar

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/birthmark-protocol/birthmark/pkg/codec"
	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/fsutil"
	"github.com/birthmark-protocol/birthmark/pkg/jsonutil"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

// Version is the envelope layout written by this package.
const Version = 1

const suffix = ".birthmark"

// Envelope wraps a Record with the algorithm that produced its
// fingerprint and a checksum over the record's canonical JSON.
type Envelope struct {
	Version   int             `json:"version"`
	Algorithm model.Algorithm `json:"algorithm"`
	Record    model.Record    `json:"record"`
	Checksum  string          `json:"checksum"`
}

// Seal builds an envelope for rec with its checksum filled in.
func Seal(rec *model.Record, alg model.Algorithm) (Envelope, error) {
	if rec == nil {
		return Envelope{}, errclass.ErrInvalidRecord.WithMessage("sidecar needs a record")
	}
	sum, err := jsonutil.Checksum(rec)
	if err != nil {
		return Envelope{}, fmt.Errorf("sidecar checksum: %w", err)
	}
	return Envelope{Version: Version, Algorithm: alg, Record: *rec.Clone(), Checksum: sum}, nil
}

// Verify recomputes the record checksum.
func (e *Envelope) Verify() error {
	if e.Version != Version {
		return errclass.ErrSidecarCorrupt.WithMessagef("unsupported sidecar version %d", e.Version)
	}
	sum, err := jsonutil.Checksum(&e.Record)
	if err != nil {
		return fmt.Errorf("sidecar checksum: %w", err)
	}
	if sum != e.Checksum {
		return errclass.ErrSidecarCorrupt.WithMessagef("checksum mismatch for %s", e.Record.Fingerprint)
	}
	return nil
}

// PathFor returns the sidecar path for mediaPath in the given format.
func PathFor(mediaPath string, format model.SidecarFormat) string {
	return mediaPath + suffix + "." + string(format)
}

// MediaPathFor inverts PathFor. ok is false when path is not a sidecar.
func MediaPathFor(path string) (media string, format model.SidecarFormat, ok bool) {
	for _, f := range []model.SidecarFormat{model.SidecarJSON, model.SidecarCBOR} {
		ext := suffix + "." + string(f)
		if len(path) > len(ext) && strings.HasSuffix(path, ext) {
			return strings.TrimSuffix(path, ext), f, true
		}
	}
	return "", "", false
}

// ParseFormat accepts json, cbor or none; empty means json.
func ParseFormat(s string) (model.SidecarFormat, error) {
	switch f := model.SidecarFormat(s); f {
	case "":
		return model.SidecarJSON, nil
	case model.SidecarJSON, model.SidecarCBOR, model.SidecarNone:
		return f, nil
	default:
		return "", errclass.ErrInvalidConfiguration.WithMessagef("unknown sidecar format %q (json, cbor, none)", s)
	}
}

// Write stores env next to mediaPath atomically and returns the sidecar
// path. SidecarNone writes nothing and returns "".
func Write(mediaPath string, env Envelope, format model.SidecarFormat) (string, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case model.SidecarNone:
		return "", nil
	case model.SidecarJSON, "":
		format = model.SidecarJSON
		data, err = json.MarshalIndent(env, "", "  ")
		if err == nil {
			data = append(data, '\n')
		}
	case model.SidecarCBOR:
		data, err = codec.Marshal(env)
	default:
		return "", errclass.ErrInvalidConfiguration.WithMessagef("unknown sidecar format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("encode sidecar: %w", err)
	}

	path := PathFor(mediaPath, format)
	if err := fsutil.AtomicWrite(path, data, 0644); err != nil {
		return "", fmt.Errorf("write sidecar: %w", err)
	}
	return path, nil
}

// Read loads and verifies the sidecar for mediaPath, trying JSON first.
// A missing sidecar yields an error matching fs.ErrNotExist.
func Read(mediaPath string) (*Envelope, model.SidecarFormat, error) {
	for _, format := range []model.SidecarFormat{model.SidecarJSON, model.SidecarCBOR} {
		path := PathFor(mediaPath, format)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("read sidecar: %w", err)
		}
		env, err := decode(data, format)
		if err != nil {
			return nil, format, err
		}
		if err := env.Verify(); err != nil {
			return nil, format, fmt.Errorf("%s: %w", path, err)
		}
		return env, format, nil
	}
	return nil, "", fmt.Errorf("no sidecar for %s: %w", mediaPath, fs.ErrNotExist)
}

func decode(data []byte, format model.SidecarFormat) (*Envelope, error) {
	var env Envelope
	var err error
	if format == model.SidecarCBOR {
		err = codec.Unmarshal(data, &env)
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&env)
	}
	if err != nil {
		return nil, errclass.ErrSidecarCorrupt.WithMessagef("decode %s sidecar: %v", format, err)
	}
	return &env, nil
}
