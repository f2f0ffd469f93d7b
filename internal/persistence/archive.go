package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"cryptopolis/internal/engine"
)

// archiveVersion guards against decoding a save written by an
// incompatible build.
const archiveVersion = 1

type archiveEnvelope struct {
	Version int          `json:"version"`
	State   engine.State `json:"state"`
}

// ExportArchive serializes a state into a portable zstd-compressed blob,
// independent of the SQLite file. Used for downloads and backups.
func ExportArchive(st engine.State) ([]byte, error) {
	raw, err := json.Marshal(archiveEnvelope{Version: archiveVersion, State: st})
	if err != nil {
		return nil, fmt.Errorf("encode archive: %w", err)
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return nil, fmt.Errorf("compress archive: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("flush archive: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportArchive decodes a blob produced by ExportArchive.
func ImportArchive(blob []byte) (engine.State, error) {
	var st engine.State

	dec, err := zstd.NewReader(bytes.NewReader(blob))
	if err != nil {
		return st, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return st, fmt.Errorf("decompress archive: %w", err)
	}

	var env archiveEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return st, fmt.Errorf("decode archive: %w", err)
	}
	if env.Version != archiveVersion {
		return st, fmt.Errorf("unsupported archive version %d", env.Version)
	}
	return env.State, nil
}
