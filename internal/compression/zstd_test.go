package compression

import (
	"bytes"
	"errors"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("%PDF-1.7 0 0 612 792 re f\n"), 200)

	tests := []struct {
		name  string
		level int
		input []byte
		zstd  bool
	}{
		{name: "disabled", level: 0, input: compressible, zstd: false},
		{name: "fastest", level: 1, input: compressible, zstd: true},
		{name: "better", level: 3, input: compressible, zstd: true},
		{name: "small input stays raw", level: 2, input: []byte("%PDF"), zstd: false},
		{name: "empty", level: 2, input: []byte{}, zstd: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCompressor(tt.level)
			if err != nil {
				t.Fatalf("NewCompressor: %v", err)
			}
			defer c.Close()

			frame := c.Compress(tt.input)
			if got := frame[0] == tagZstd; got != tt.zstd {
				t.Fatalf("zstd frame = %v, want %v", got, tt.zstd)
			}
			if tt.zstd && len(frame) >= len(tt.input) {
				t.Errorf("compressed frame is %d bytes, input %d", len(frame), len(tt.input))
			}

			out, err := c.Decompress(frame)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(out, tt.input) {
				t.Errorf("round trip mismatch")
			}
		})
	}
}

func TestCompressDoesNotAlias(t *testing.T) {
	c, err := NewCompressor(0)
	if err != nil {
		t.Fatal(err)
	}
	in := []byte("stored bytes")
	frame := c.Compress(in)
	in[0] = 'X'

	out, err := c.Decompress(frame)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "stored bytes" {
		t.Errorf("frame changed with its input: %q", out)
	}
}

func TestDecompressCorrupt(t *testing.T) {
	c, err := NewCompressor(2)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	for _, frame := range [][]byte{nil, {9, 1, 2}, {tagZstd, 1, 2, 3}} {
		if _, err := c.Decompress(frame); !errors.Is(err, ErrCorrupt) {
			t.Errorf("Decompress(%v) err = %v, want ErrCorrupt", frame, err)
		}
	}
}
