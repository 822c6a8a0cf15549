// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/foreman/lib/secret"
)

// KeySize is the byte length of the archive key and of every derived
// per-record key.
const KeySize = 32

// encryptedPayloadVersion is the version byte prepended to sealed
// payloads. It rides the additional authenticated data, so tampering
// with it fails authentication.
const encryptedPayloadVersion byte = 0x01

// encryptedPayloadOverhead is the byte overhead per sealed payload:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const encryptedPayloadOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfoRecord is the HKDF-SHA256 info prefix for per-record key
// derivation. Changing it invalidates every sealed record.
var hkdfInfoRecord = []byte("foreman.archive.record.enc.v1")

// LoadKey reads the archive key file: 64 hex characters (32 bytes
// decoded), surrounding whitespace ignored. The decoded key lives in
// guarded memory; the caller (usually via [NewStore]) owns the
// returned buffer.
func LoadKey(path string) (*secret.Buffer, error) {
	encoded, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("reading archive key file %s: %w", path, err)
	}
	defer encoded.Close()

	if encoded.Len() != KeySize*2 {
		return nil, fmt.Errorf("archive key file %s holds %d characters, want %d hex characters",
			path, encoded.Len(), KeySize*2)
	}

	raw := make([]byte, KeySize)
	if _, err := hex.Decode(raw, encoded.Bytes()); err != nil {
		secret.Zero(raw)
		return nil, fmt.Errorf("decoding archive key from %s: %w", path, err)
	}
	return secret.NewFromBytes(raw)
}

// deriveRecordKey derives the per-record sealing key from the archive
// key and the record checksum. The archive key is borrowed, not
// closed. The caller must close the returned buffer.
func deriveRecordKey(archiveKey *secret.Buffer, digest checksum) (*secret.Buffer, error) {
	info := make([]byte, len(hkdfInfoRecord)+len(digest))
	copy(info, hkdfInfoRecord)
	copy(info[len(hkdfInfoRecord):], digest[:])

	reader := hkdf.New(sha256.New, archiveKey.Bytes(), nil, info)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		secret.Zero(derived)
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return secret.NewFromBytes(derived)
}

// encryptPayload seals a compressed record payload:
//
//	[version: 1 byte] [nonce: 24 bytes, random] [ciphertext+tag]
//
// The version byte and the record checksum form the additional
// authenticated data, binding the ciphertext to its record file so
// sealed payloads cannot be swapped between records.
func encryptPayload(payload []byte, archiveKey *secret.Buffer, digest checksum) ([]byte, error) {
	recordKey, err := deriveRecordKey(archiveKey, digest)
	if err != nil {
		return nil, err
	}
	defer recordKey.Close()

	aead, err := chacha20poly1305.NewX(recordKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	output := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(payload)+aead.Overhead())
	output[0] = encryptedPayloadVersion
	copy(output[1:], nonce[:])

	return aead.Seal(output, nonce[:], payload, buildAAD(encryptedPayloadVersion, digest)), nil
}

// decryptPayload opens a payload produced by encryptPayload.
func decryptPayload(sealed []byte, archiveKey *secret.Buffer, digest checksum) ([]byte, error) {
	if len(sealed) < encryptedPayloadOverhead {
		return nil, fmt.Errorf("sealed payload is %d bytes, minimum is %d (version + nonce + tag)",
			len(sealed), encryptedPayloadOverhead)
	}

	version := sealed[0]
	if version != encryptedPayloadVersion {
		return nil, fmt.Errorf("sealed payload version %d is not supported (expected %d)",
			version, encryptedPayloadVersion)
	}

	nonce := sealed[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[1+chacha20poly1305.NonceSizeX:]

	recordKey, err := deriveRecordKey(archiveKey, digest)
	if err != nil {
		return nil, err
	}
	defer recordKey.Close()

	aead, err := chacha20poly1305.NewX(recordKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	payload, err := aead.Open(nil, nonce, ciphertext, buildAAD(version, digest))
	if err != nil {
		return nil, fmt.Errorf("AEAD decryption failed (wrong archive key, tampered record, or mismatched checksum): %w", err)
	}
	return payload, nil
}

// buildAAD constructs the additional authenticated data: the version
// byte followed by the record checksum.
func buildAAD(version byte, digest checksum) []byte {
	aad := make([]byte, 1+len(digest))
	aad[0] = version
	copy(aad[1:], digest[:])
	return aad
}
