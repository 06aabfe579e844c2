package compression

import (
	"bytes"
	"testing"
)

func TestUnitLz4Roundtrip(t *testing.T) {
	c := &Lz4{}
	src := []byte("the quick brown fox jumps over the lazy dog")
	compressed, err := c.Compress(src)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Decompress(compressed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("got %q want %q", got, src)
	}
}

func TestUnitZstdRoundtrip(t *testing.T) {
	c := &Zstd{Level: 3}
	src := []byte("the quick brown fox jumps over the lazy dog")
	compressed, err := c.Compress(src)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Decompress(compressed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, src) {
		t.Fatalf("got %q want %q", got, src)
	}
}

func TestUnitNoneIsPassthrough(t *testing.T) {
	c := &None{}
	src := []byte("unchanged")
	compressed, _ := c.Compress(src)
	if !bytes.Equal(compressed, src) {
		t.Fatalf("got %q", compressed)
	}
}

func TestUnitDecompressorsCoversAllCodecs(t *testing.T) {
	d := Decompressors()
	if len(d) != 3 {
		t.Fatalf("got %d decompressors", len(d))
	}
}
