package wireformat

import (
	"bytes"
	"compress/flate"
	"io"
)

// Compress applies raw DEFLATE (no gzip wrapper) to an Encode'd blob, per
// the upload wire contract in spec.md §6.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, &CompressionFailed{Cause: err}
	}
	if _, err := w.Write(data); err != nil {
		return nil, &CompressionFailed{Cause: err}
	}
	if err := w.Close(); err != nil {
		return nil, &CompressionFailed{Cause: err}
	}
	return buf.Bytes(), nil
}

// Decompress inverts Compress.
func Decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, &CompressionFailed{Cause: err}
	}
	return out, nil
}
