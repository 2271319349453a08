package encoding

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// CompressThreshold is the encoded size above which documents are stored
// zstd-compressed.
const CompressThreshold = 1024

// Frame header bytes
const (
	frameRaw  byte = 0x00
	frameZstd byte = 0x01
)

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

// EncodeDocument encodes a document for storage. The first byte of the
// result is a frame header telling DecodeDocument whether the payload is
// compressed.
func EncodeDocument(doc map[string]interface{}) ([]byte, error) {
	raw, err := Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}

	if len(raw) <= CompressThreshold {
		return append([]byte{frameRaw}, raw...), nil
	}

	enc, _, err := codecs()
	if err != nil {
		return nil, fmt.Errorf("failed to init zstd: %w", err)
	}

	out := make([]byte, 1, len(raw)/2+1)
	out[0] = frameZstd
	return enc.EncodeAll(raw, out), nil
}

// DecodeDocument reverses EncodeDocument
func DecodeDocument(data []byte) (map[string]interface{}, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document frame")
	}

	payload := data[1:]
	switch data[0] {
	case frameRaw:
	case frameZstd:
		_, dec, err := codecs()
		if err != nil {
			return nil, fmt.Errorf("failed to init zstd: %w", err)
		}
		payload, err = dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress document: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown document frame 0x%02x", data[0])
	}

	var doc map[string]interface{}
	if err := Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}
