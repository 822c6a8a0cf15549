// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bureau-foundation/foreman/lib/codec"
	"github.com/bureau-foundation/foreman/lib/secret"
)

const (
	recordSuffix  = ".rec"
	indexFileName = "index.jsonl"
	tmpDirName    = "tmp"
)

// recordMagic opens every record file.
var recordMagic = [4]byte{'F', 'R', 'E', 'C'}

// recordVersion is the record file format version.
const recordVersion byte = 1

// Record file layout:
//
//	magic       [4]byte  "FREC"
//	version     byte
//	compression byte
//	flags       byte
//	checksum    [32]byte  BLAKE3 of the plaintext CBOR record
//	size        uint64    big-endian plaintext length
//	payload     ...       compressed, sealed when flagEncrypted
const recordHeaderSize = 4 + 1 + 1 + 1 + checksumSize + 8

// flagEncrypted marks a sealed payload.
const flagEncrypted byte = 0x01

// Store is a session record archive rooted at one directory. Writes
// for distinct ids land independently; index appends are serialized
// internally, so Store is safe for concurrent use. Rewriting an id
// replaces the record file and the latest index line wins.
type Store struct {
	root string

	// key seals new records when non-nil. The store owns it; Close
	// releases it. Plaintext records remain readable either way.
	key *secret.Buffer

	mu sync.Mutex
}

// NewStore creates a Store rooted at the given directory, creating it
// if missing. A non-nil key must hold KeySize bytes (see [LoadKey]);
// the store takes ownership and seals every record written from then
// on.
func NewStore(root string, key *secret.Buffer) (*Store, error) {
	if key != nil && key.Len() != KeySize {
		return nil, fmt.Errorf("archive key must be %d bytes, got %d", KeySize, key.Len())
	}
	for _, dir := range []string{root, filepath.Join(root, tmpDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory %s: %w", dir, err)
		}
	}
	return &Store{root: root, key: key}, nil
}

// Encrypted reports whether new records are sealed.
func (s *Store) Encrypted() bool {
	return s.key != nil
}

// Close releases the archive key, if any. Idempotent.
func (s *Store) Close() error {
	if s.key == nil {
		return nil
	}
	return s.key.Close()
}

// Write encodes, compresses, optionally seals, and persists a record,
// then appends its index entry. The record file is complete before the
// index line exists, so a reader following the index never finds a
// missing or partial record.
func (s *Store) Write(record *Record) (IndexEntry, error) {
	if err := record.Validate(); err != nil {
		return IndexEntry{}, err
	}

	plain, err := codec.Marshal(record)
	if err != nil {
		return IndexEntry{}, fmt.Errorf("encoding archive record: %w", err)
	}
	digest := hashRecord(plain)

	payload, tag, err := compressRecord(plain)
	if err != nil {
		return IndexEntry{}, fmt.Errorf("compressing archive record: %w", err)
	}

	var flags byte
	if s.key != nil {
		payload, err = encryptPayload(payload, s.key, digest)
		if err != nil {
			return IndexEntry{}, fmt.Errorf("sealing archive record: %w", err)
		}
		flags |= flagEncrypted
	}

	header := make([]byte, recordHeaderSize)
	copy(header[0:4], recordMagic[:])
	header[4] = recordVersion
	header[5] = byte(tag)
	header[6] = flags
	copy(header[7:7+checksumSize], digest[:])
	binary.BigEndian.PutUint64(header[7+checksumSize:], uint64(len(plain)))

	if err := s.writeRecordFile(record.ID, header, payload); err != nil {
		return IndexEntry{}, err
	}

	entry := IndexEntry{
		ID:          record.ID,
		SessionID:   record.SessionID,
		AgentType:   record.AgentType,
		Label:       record.Label,
		FinalStatus: record.FinalStatus,
		StopReason:  record.StopReason,
		SpawnedAt:   record.SpawnedAt,
		StoppedAt:   record.StoppedAt,
		Size:        int64(len(plain)),
		StoredSize:  int64(recordHeaderSize + len(payload)),
		Compression: tag.String(),
		Encrypted:   flags&flagEncrypted != 0,
		Checksum:    formatChecksum(digest),
	}
	if err := s.appendIndex(entry); err != nil {
		return IndexEntry{}, err
	}
	return entry, nil
}

// Read loads and verifies the record with the given id. Sealed
// records require the store's archive key; plaintext records read
// fine on a store without one.
func (s *Store) Read(id string) (*Record, error) {
	if err := validateRecordID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.recordPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading archive record %s: %w", id, err)
	}

	if len(data) < recordHeaderSize {
		return nil, fmt.Errorf("archive record %s is %d bytes, shorter than the %d byte header",
			id, len(data), recordHeaderSize)
	}
	var magic [4]byte
	copy(magic[:], data[0:4])
	if magic != recordMagic {
		return nil, fmt.Errorf("archive record %s has no record magic", id)
	}
	if version := data[4]; version != recordVersion {
		return nil, fmt.Errorf("archive record %s has version %d, this build reads version %d",
			id, version, recordVersion)
	}

	tag := compressionTag(data[5])
	flags := data[6]
	var digest checksum
	copy(digest[:], data[7:7+checksumSize])
	size := binary.BigEndian.Uint64(data[7+checksumSize : recordHeaderSize])
	payload := data[recordHeaderSize:]

	if flags&flagEncrypted != 0 {
		if s.key == nil {
			return nil, fmt.Errorf("archive record %s is sealed and no archive key is configured", id)
		}
		payload, err = decryptPayload(payload, s.key, digest)
		if err != nil {
			return nil, fmt.Errorf("unsealing archive record %s: %w", id, err)
		}
	}

	plain, err := decompressRecord(payload, tag, int(size))
	if err != nil {
		return nil, fmt.Errorf("decompressing archive record %s: %w", id, err)
	}
	if hashRecord(plain) != digest {
		return nil, fmt.Errorf("archive record %s failed its integrity check", id)
	}

	var record Record
	if err := codec.Unmarshal(plain, &record); err != nil {
		return nil, fmt.Errorf("decoding archive record %s: %w", id, err)
	}
	return &record, nil
}

// List returns the index entries in write order, one per record id
// (a rewritten id keeps its position with the latest entry). A
// missing index means an empty store.
func (s *Store) List() ([]IndexEntry, error) {
	data, err := os.ReadFile(s.indexPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading archive index: %w", err)
	}

	var entries []IndexEntry
	position := make(map[string]int)
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		var entry IndexEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			// Torn lines happen when the daemon dies mid-append. The
			// record file was already renamed into place and carries
			// its own checksum, so skip the line rather than wedging
			// every future List.
			continue
		}
		if j, seen := position[entry.ID]; seen {
			entries[j] = entry
			continue
		}
		position[entry.ID] = len(entries)
		entries = append(entries, entry)
	}
	return entries, nil
}

// writeRecordFile writes header+payload through the tmp directory and
// renames into place, so a crash never leaves a partial record under
// its final name.
func (s *Store) writeRecordFile(id string, header, payload []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDirName), "record-*"+recordSuffix)
	if err != nil {
		return fmt.Errorf("creating temp record file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(header); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing record header: %w", err)
	}
	if _, err := tmpFile.Write(payload); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing record payload: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp record file: %w", err)
	}

	finalPath := s.recordPath(id)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming record to %s: %w", finalPath, err)
	}
	success = true
	return nil
}

// appendIndex writes one JSON line to index.jsonl under the store
// mutex, so concurrent writes cannot interleave lines.
func (s *Store) appendIndex(entry IndexEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding archive index entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.indexPath(), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening archive index: %w", err)
	}
	out := append(line, '\n')
	if info, err := file.Stat(); err == nil && info.Size() > 0 {
		var tail [1]byte
		if _, err := file.ReadAt(tail[:], info.Size()-1); err == nil && tail[0] != '\n' {
			// A crash mid-append left a torn line. Terminate it so the
			// fragment stays confined to its own line instead of
			// polluting this entry.
			out = append([]byte{'\n'}, out...)
		}
	}
	if _, err := file.Write(out); err != nil {
		file.Close()
		return fmt.Errorf("appending archive index entry: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing archive index: %w", err)
	}
	return nil
}

func (s *Store) recordPath(id string) string {
	return filepath.Join(s.root, id+recordSuffix)
}

func (s *Store) indexPath() string {
	return filepath.Join(s.root, indexFileName)
}
