// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"bytes"
	"crypto/rand"
	"testing"
)

// repetitiveTranscript builds transcript-like data that compresses
// well: the same status lines over and over.
func repetitiveTranscript(size int) []byte {
	line := []byte("worker: compiling module alpha\nworker: all checks passing\n")
	data := make([]byte, 0, size+len(line))
	for len(data) < size {
		data = append(data, line...)
	}
	return data[:size]
}

func TestCompressionTagString(t *testing.T) {
	tests := []struct {
		tag  compressionTag
		want string
	}{
		{compressionNone, "none"},
		{compressionLZ4, "lz4"},
		{compressionZstd, "zstd"},
		{compressionTag(99), "unknown(99)"},
	}

	for _, tt := range tests {
		if got := tt.tag.String(); got != tt.want {
			t.Errorf("compressionTag(%d).String() = %q, want %q", tt.tag, got, tt.want)
		}
	}
}

func TestSelectCompressionProbe(t *testing.T) {
	if tag := selectCompression(repetitiveTranscript(64 * 1024)); tag != compressionZstd {
		t.Errorf("selectCompression(transcript) = %s, want zstd", tag)
	}

	random := make([]byte, 64*1024)
	rand.Read(random)
	if tag := selectCompression(random); tag != compressionNone {
		t.Errorf("selectCompression(random) = %s, want none", tag)
	}
}

func TestSelectCompressionEmpty(t *testing.T) {
	if tag := selectCompression(nil); tag != compressionNone {
		t.Errorf("selectCompression(nil) = %s, want none", tag)
	}
}

func TestCompressRecordRoundTrip(t *testing.T) {
	data := repetitiveTranscript(96 * 1024)

	payload, tag, err := compressRecord(data)
	if err != nil {
		t.Fatalf("compressRecord failed: %v", err)
	}
	if tag != compressionZstd {
		t.Errorf("compressRecord selected %s, want zstd", tag)
	}
	if len(payload) >= len(data) {
		t.Errorf("record did not shrink: %d bytes → %d bytes", len(data), len(payload))
	}

	got, err := decompressRecord(payload, tag, len(data))
	if err != nil {
		t.Fatalf("decompressRecord failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("roundtrip mismatch")
	}
}

func TestCompressRecordIncompressible(t *testing.T) {
	data := make([]byte, 32*1024)
	rand.Read(data)

	payload, tag, err := compressRecord(data)
	if err != nil {
		t.Fatalf("compressRecord failed: %v", err)
	}
	if tag != compressionNone {
		t.Errorf("compressRecord selected %s for random data, want none", tag)
	}
	if !bytes.Equal(payload, data) {
		t.Error("raw payload should pass through unchanged")
	}

	got, err := decompressRecord(payload, tag, len(data))
	if err != nil {
		t.Fatalf("decompressRecord failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("roundtrip mismatch")
	}
}

func TestLZ4RoundTrip(t *testing.T) {
	data := repetitiveTranscript(16 * 1024)

	compressed, err := compressLZ4(data)
	if err != nil {
		t.Fatalf("compressLZ4 failed: %v", err)
	}
	if len(compressed) >= len(data) {
		t.Errorf("lz4 did not compress: %d bytes → %d bytes", len(data), len(compressed))
	}

	got, err := decompressLZ4(compressed, len(data))
	if err != nil {
		t.Fatalf("decompressLZ4 failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("lz4 roundtrip mismatch")
	}
}

func TestLZ4Incompressible(t *testing.T) {
	data := make([]byte, 16*1024)
	rand.Read(data)

	if _, err := compressLZ4(data); err != errIncompressible {
		t.Errorf("compressLZ4(random) = %v, want errIncompressible", err)
	}
}

func TestZstdIncompressible(t *testing.T) {
	data := make([]byte, 16*1024)
	rand.Read(data)

	if _, err := compressZstd(data); err != errIncompressible {
		t.Errorf("compressZstd(random) = %v, want errIncompressible", err)
	}
}

func TestDecompressRecordSizeMismatch(t *testing.T) {
	data := repetitiveTranscript(8 * 1024)
	payload, tag, err := compressRecord(data)
	if err != nil {
		t.Fatalf("compressRecord failed: %v", err)
	}

	if _, err := decompressRecord(payload, tag, len(data)-1); err == nil {
		t.Error("decompressRecord should reject a size mismatch")
	}
}

func TestDecompressRecordUnknownTag(t *testing.T) {
	if _, err := decompressRecord([]byte{1, 2, 3}, compressionTag(7), 3); err == nil {
		t.Error("decompressRecord should reject an unknown tag")
	}
}
