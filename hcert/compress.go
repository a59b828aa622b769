package hcert

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// MaxDecompressedSize caps the output of Decompress.
const MaxDecompressedSize = 4 << 20

// Compress wraps data in a zlib stream at the default compression level.
// Output is not expected to match other zlib implementations byte for byte.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	if err != nil {
		return nil, wrapError(KindInternal, "HC1-INT-001", "zlib: create writer", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, wrapError(KindInternal, "HC1-INT-001", "zlib: compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, wrapError(KindInternal, "HC1-INT-001", "zlib: finish stream", err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates a complete zlib stream.
//
// It fails with KindCompression on a bad header, a corrupt block, a truncated
// stream, an adler32 mismatch, bytes following the stream, or output larger
// than MaxDecompressedSize. It never returns partial output.
func Decompress(data []byte) ([]byte, error) {
	src := bytes.NewReader(data)
	r, err := zlib.NewReader(src)
	if err != nil {
		return nil, wrapError(KindCompression, "HC1-ZLIB-001", "zlib: invalid stream header", err)
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, MaxDecompressedSize+1))
	if err != nil {
		return nil, wrapError(KindCompression, "HC1-ZLIB-002", "zlib: corrupt or truncated stream", err)
	}
	if len(out) > MaxDecompressedSize {
		return nil, newError(KindCompression, "HC1-ZLIB-003",
			fmt.Sprintf("zlib: decompressed size exceeds %d bytes", MaxDecompressedSize))
	}
	if src.Len() > 0 {
		return nil, newError(KindCompression, "HC1-ZLIB-004",
			fmt.Sprintf("zlib: %d trailing bytes after stream", src.Len()))
	}
	return out, nil
}
