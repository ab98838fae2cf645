// Package compression holds the zstd codec the file cache uses to keep
// uploaded documents compressed while they wait to be merged.
package compression

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Frame tags. Every encoded value starts with one of them so that Decompress
// knows whether the payload went through zstd or was kept as is.
const (
	tagRaw  byte = 0
	tagZstd byte = 1
)

// minSize is the smallest input worth compressing.
const minSize = 128

var ErrCorrupt = errors.New("compression: corrupt frame")

type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	enabled bool
}

// NewCompressor returns a codec for the given level (1 fastest, 2 default,
// 3 better compression). Level 0 disables compression; values are still
// framed so the two modes can read each other's output.
func NewCompressor(level int) (*Compressor, error) {
	if level <= 0 {
		return &Compressor{enabled: false}, nil
	}

	var encoderLevel zstd.EncoderLevel
	switch level {
	case 1:
		encoderLevel = zstd.SpeedFastest
	case 2:
		encoderLevel = zstd.SpeedDefault
	case 3:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedDefault
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("compression: new encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("compression: new decoder: %w", err)
	}

	return &Compressor{
		encoder: encoder,
		decoder: decoder,
		enabled: true,
	}, nil
}

// Enabled reports whether values are zstd-compressed.
func (c *Compressor) Enabled() bool { return c.enabled }

// Compress returns a framed copy of data. The result never aliases data.
func (c *Compressor) Compress(data []byte) []byte {
	if c.enabled && len(data) >= minSize {
		dst := make([]byte, 1, len(data)/2+1)
		dst[0] = tagZstd
		dst = c.encoder.EncodeAll(data, dst)
		if len(dst) < len(data)+1 {
			return dst
		}
	}

	dst := make([]byte, len(data)+1)
	dst[0] = tagRaw
	copy(dst[1:], data)
	return dst
}

// Decompress returns the original bytes of a frame produced by Compress.
func (c *Compressor) Decompress(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, ErrCorrupt
	}

	switch frame[0] {
	case tagRaw:
		out := make([]byte, len(frame)-1)
		copy(out, frame[1:])
		return out, nil
	case tagZstd:
		if c.decoder == nil {
			return nil, fmt.Errorf("%w: zstd frame with compression disabled", ErrCorrupt)
		}
		out, err := c.decoder.DecodeAll(frame[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown tag %d", ErrCorrupt, frame[0])
	}
}

func (c *Compressor) Close() error {
	if c.encoder != nil {
		if err := c.encoder.Close(); err != nil {
			return err
		}
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}
