// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// Record is the archival form of one finished session.
type Record struct {
	// ID names the record file. The daemon uses the session id.
	ID string `cbor:"id"`

	SessionID   string `cbor:"session_id"`
	AgentType   string `cbor:"agent_type"`
	Name        string `cbor:"name"`
	Label       string `cbor:"label,omitempty"`
	Workdir     string `cbor:"workdir"`
	InitialTask string `cbor:"initial_task,omitempty"`

	// FinalStatus is the terminal session status (stopped or error).
	// StopReason carries the requested stop reason, or the fault
	// message for error terminations.
	FinalStatus string `cbor:"final_status"`
	StopReason  string `cbor:"stop_reason,omitempty"`

	SpawnedAt time.Time `cbor:"spawned_at"`
	StoppedAt time.Time `cbor:"stopped_at"`

	// Transcript is the retained scrollback at teardown. Truncated
	// reports that eviction had discarded older output.
	Transcript          string `cbor:"transcript"`
	TranscriptTruncated bool   `cbor:"transcript_truncated,omitempty"`

	// Decisions is the coordinator's decision history for the
	// session, empty for uncoordinated sessions.
	Decisions    []Decision `cbor:"decisions,omitempty"`
	AutoResolved int        `cbor:"auto_resolved,omitempty"`
}

// Decision is one archived coordination decision.
type Decision struct {
	Trigger   string    `cbor:"trigger"`
	Prompt    string    `cbor:"prompt,omitempty"`
	Action    string    `cbor:"action"`
	Response  string    `cbor:"response,omitempty"`
	Reasoning string    `cbor:"reasoning,omitempty"`
	Outcome   string    `cbor:"outcome,omitempty"`
	Time      time.Time `cbor:"time"`
}

// Validate checks the fields the store depends on. The record id
// becomes a file name, so it must not carry path elements.
func (r *Record) Validate() error {
	if err := validateRecordID(r.ID); err != nil {
		return err
	}
	if r.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if r.FinalStatus == "" {
		return fmt.Errorf("final status is required")
	}
	if r.StoppedAt.IsZero() {
		return fmt.Errorf("stopped-at time is required")
	}
	return nil
}

func validateRecordID(id string) error {
	if id == "" {
		return fmt.Errorf("record id is required")
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return fmt.Errorf("record id %q is not a valid file name", id)
	}
	return nil
}

// IndexEntry is one line of the store's index.jsonl: the listing
// fields of a written record plus its integrity checksum.
type IndexEntry struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	AgentType   string    `json:"agentType"`
	Label       string    `json:"label,omitempty"`
	FinalStatus string    `json:"finalStatus"`
	StopReason  string    `json:"stopReason,omitempty"`
	SpawnedAt   time.Time `json:"spawnedAt"`
	StoppedAt   time.Time `json:"stoppedAt"`

	// Size is the plaintext CBOR record length; StoredSize is the
	// record file length after compression and sealing.
	Size       int64 `json:"size"`
	StoredSize int64 `json:"storedSize"`

	Compression string `json:"compression"`
	Encrypted   bool   `json:"encrypted,omitempty"`

	// Checksum is the hex BLAKE3 digest of the plaintext record.
	Checksum string `json:"checksum"`
}

// ErrRecordNotFound reports a read of an id with no record file.
// Wrapped errors carry the id.
var ErrRecordNotFound = errors.New("archive record not found")

const checksumSize = 32

// checksum is the record-domain BLAKE3 digest of a plaintext record.
type checksum [checksumSize]byte

// recordDomainKey is the BLAKE3 key for record checksums. Keyed
// hashing keeps record digests from ever colliding with hashes
// computed elsewhere over the same bytes. The value is the ASCII
// domain name zero-padded to 32 bytes, inspectable in hex dumps.
var recordDomainKey = [checksumSize]byte{
	'f', 'o', 'r', 'e', 'm', 'a', 'n', '.', 'a', 'r', 'c', 'h', 'i', 'v', 'e', '.',
	'r', 'e', 'c', 'o', 'r', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// hashRecord computes the record-domain checksum of plaintext record
// bytes.
func hashRecord(data []byte) checksum {
	hasher, err := blake3.NewKeyed(recordDomainKey[:])
	if err != nil {
		panic("archive: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var digest checksum
	copy(digest[:], hasher.Sum(nil))
	return digest
}

func formatChecksum(digest checksum) string {
	return hex.EncodeToString(digest[:])
}
