// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive persists finished sessions as durable records. The
// daemon writes one record per terminal session: session metadata, the
// full scrollback transcript, and the coordinator's decision history,
// CBOR-encoded, compressed, and optionally sealed under an archive
// key. The foreman CLI reads the store directly from disk, so records
// stay inspectable when the daemon is down.
//
// On disk the store is a flat directory. Each record is a <id>.rec
// file written through tmp/ and renamed into place, so readers never
// see a partial record. An append-only index.jsonl carries one JSON
// line per written record with the listing fields and the BLAKE3
// checksum of the plaintext record.
//
// Record payloads are compressed by probing: zstd when the transcript
// compresses well, lz4 when the ratio is marginal, stored raw when
// incompressible. When the store holds an archive key, the compressed
// payload is sealed with XChaCha20-Poly1305 under a per-record key
// derived via HKDF from the archive key and the record checksum; the
// checksum rides the additional authenticated data, so payloads cannot
// be swapped between record files.
//
// Key exports: [Store] with [Store.Write], [Store.Read], and
// [Store.List]; [Record] and [Decision]; [IndexEntry]; [LoadKey] for
// the hex-encoded archive key file; [ErrRecordNotFound].
package archive
