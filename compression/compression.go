// Package compression implements the libkafka batch.Compressor/Decompressor
// pair for the codecs the module supports: lz4, zstd, and the no-op
// passthrough used by tests and by cmd/produce.
package compression

import (
	"bytes"
	"io"

	"github.com/DataDog/zstd"
	"github.com/mkocikowski/libkafka/batch"
	"github.com/mkocikowski/libkafka/compression"
	"github.com/pierrec/lz4"
)

type Lz4 struct{}

func (c *Lz4) Compress(src []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := lz4.NewWriter(buf)
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *Lz4) Decompress(src []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(src))
	return io.ReadAll(r)
}

func (c *Lz4) Type() int16 {
	return compression.Lz4
}

type Zstd struct {
	Level int
}

func (c *Zstd) Compress(src []byte) ([]byte, error) {
	return zstd.CompressLevel(nil, src, c.Level)
}

func (c *Zstd) Decompress(src []byte) ([]byte, error) {
	return zstd.Decompress(nil, src)
}

func (c *Zstd) Type() int16 {
	return compression.Zstd
}

type None struct{}

func (c *None) Compress(src []byte) ([]byte, error) {
	return src, nil
}

func (c *None) Decompress(src []byte) ([]byte, error) {
	return src, nil
}

func (c *None) Type() int16 {
	return compression.None
}

// Decompressors builds the map broker.LibkafkaClient needs to decode
// batches regardless of which codec produced them.
func Decompressors() map[int16]batch.Decompressor {
	return map[int16]batch.Decompressor{
		compression.None: &None{},
		compression.Lz4:  &Lz4{},
		compression.Zstd: &Zstd{},
	}
}
