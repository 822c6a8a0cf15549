// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workerproto_test

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/bureau-foundation/foreman/lib/codec"
	"github.com/bureau-foundation/foreman/lib/workerproto"
)

func TestRequestResponseRoundTrip(t *testing.T) {
	var wire bytes.Buffer
	encoder := codec.NewEncoder(&wire)

	request, err := workerproto.NewRequest(7, workerproto.ActionSpawn, workerproto.SpawnRequest{
		SessionID: "sess-1",
		Name:      "foreman-sess-1",
		Command:   []string{"claude"},
		Workdir:   "/work/repo",
		Env:       map[string]string{"TERM": "xterm-256color"},
	})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if err := encoder.Encode(request); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	response, err := workerproto.NewResponse(7, workerproto.CaptureResponse{Content: "pane text"})
	if err != nil {
		t.Fatalf("NewResponse: %v", err)
	}
	if err := encoder.Encode(response); err != nil {
		t.Fatalf("Encode response: %v", err)
	}

	decoder := codec.NewDecoder(&wire)

	var decodedRequest workerproto.Frame
	if err := decoder.Decode(&decodedRequest); err != nil {
		t.Fatalf("Decode request: %v", err)
	}
	if decodedRequest.Kind != workerproto.KindRequest || decodedRequest.ID != 7 {
		t.Fatalf("decoded frame = %+v", decodedRequest)
	}
	if decodedRequest.Action != workerproto.ActionSpawn {
		t.Errorf("Action = %q", decodedRequest.Action)
	}

	var spawn workerproto.SpawnRequest
	if err := decodedRequest.DecodeData(&spawn); err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if spawn.SessionID != "sess-1" || spawn.Workdir != "/work/repo" {
		t.Errorf("spawn payload = %+v", spawn)
	}
	if len(spawn.Command) != 1 || spawn.Command[0] != "claude" {
		t.Errorf("spawn command = %v", spawn.Command)
	}

	var decodedResponse workerproto.Frame
	if err := decoder.Decode(&decodedResponse); err != nil {
		t.Fatalf("Decode response: %v", err)
	}
	if !decodedResponse.OK || decodedResponse.ID != 7 {
		t.Fatalf("response frame = %+v", decodedResponse)
	}
	var capture workerproto.CaptureResponse
	if err := decodedResponse.DecodeData(&capture); err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if capture.Content != "pane text" {
		t.Errorf("capture content = %q", capture.Content)
	}
}

func TestErrorResponse(t *testing.T) {
	frame := workerproto.NewErrorResponse(3, "no such session")
	if frame.OK {
		t.Error("error response marked OK")
	}
	if frame.Error != "no such session" {
		t.Errorf("Error = %q", frame.Error)
	}
	if frame.ID != 3 {
		t.Errorf("ID = %d", frame.ID)
	}
}

func TestEventStreamOrdering(t *testing.T) {
	var wire bytes.Buffer
	encoder := codec.NewEncoder(&wire)

	when := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	events := []struct {
		name    string
		payload any
	}{
		{workerproto.EventHello, workerproto.HelloEvent{Version: "1.2.3", PID: 4242}},
		{workerproto.EventOutput, workerproto.OutputEvent{SessionID: "s", Text: "building...\n", Time: when}},
		{workerproto.EventExited, workerproto.ExitedEvent{SessionID: "s", ExitCode: 143}},
	}
	for _, event := range events {
		frame, err := workerproto.NewEvent(event.name, event.payload)
		if err != nil {
			t.Fatalf("NewEvent(%s): %v", event.name, err)
		}
		if err := encoder.Encode(frame); err != nil {
			t.Fatalf("Encode(%s): %v", event.name, err)
		}
	}

	decoder := codec.NewDecoder(&wire)
	for i, want := range events {
		var frame workerproto.Frame
		if err := decoder.Decode(&frame); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if frame.Kind != workerproto.KindEvent || frame.Action != want.name {
			t.Fatalf("frame %d = %+v, want event %s", i, frame, want.name)
		}
	}
	var frame workerproto.Frame
	if err := decoder.Decode(&frame); err != io.EOF {
		t.Fatalf("trailing Decode = %v, want io.EOF", err)
	}
}

func TestExitedEventPayload(t *testing.T) {
	frame, err := workerproto.NewEvent(workerproto.EventExited, workerproto.ExitedEvent{
		SessionID: "sess-9",
		ExitCode:  128 + 15,
	})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	var exited workerproto.ExitedEvent
	if err := frame.DecodeData(&exited); err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	if exited.ExitCode != 143 {
		t.Errorf("ExitCode = %d, want 143", exited.ExitCode)
	}
}

func TestDecodeDataRequiresPayload(t *testing.T) {
	frame, err := workerproto.NewRequest(1, workerproto.ActionShutdown, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	var target workerproto.StopRequest
	if err := frame.DecodeData(&target); err == nil {
		t.Fatal("DecodeData on bodyless frame succeeded")
	}
}

func TestUnknownFieldsTolerated(t *testing.T) {
	// A newer worker may add frame fields; an older daemon must
	// still decode the parts it knows.
	type futureFrame struct {
		Kind    workerproto.Kind `cbor:"kind"`
		ID      uint64           `cbor:"id"`
		Action  string           `cbor:"action"`
		Novelty string           `cbor:"novelty"`
	}
	encoded, err := codec.Marshal(futureFrame{
		Kind:    workerproto.KindRequest,
		ID:      11,
		Action:  workerproto.ActionSend,
		Novelty: "ignored",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var frame workerproto.Frame
	if err := codec.Unmarshal(encoded, &frame); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if frame.ID != 11 || frame.Action != workerproto.ActionSend {
		t.Errorf("frame = %+v", frame)
	}
}
