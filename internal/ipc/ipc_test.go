package ipc

import (
	"bytes"
	"encoding/binary"
	"net"
	"path/filepath"
	"strings"
	"testing"

	"github.com/basalt-app/basalt/internal/capture"
)

func TestFrameRoundTrip(t *testing.T) {
	sent := Envelope{
		Auth: "secret",
		Job: capture.Job{
			Kind:    capture.SourceRaw,
			Content: "some text",
			Flags:   map[string]string{"n": "5"},
		},
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, sent); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	var got Envelope
	if err := ReadFrame(&buf, &got); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if got.Auth != sent.Auth || got.Job.Kind != sent.Job.Kind || got.Job.Content != sent.Job.Content {
		t.Errorf("Round trip changed the envelope: %+v", got)
	}
	if got.Job.Flags["n"] != "5" {
		t.Errorf("Round trip lost the flags: %v", got.Job.Flags)
	}
}

func TestReadFrameRejectsBadSizes(t *testing.T) {
	t.Run("zero length", func(t *testing.T) {
		var got Envelope
		if err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}), &got); err == nil {
			t.Error("Expected an error for a zero-length frame")
		}
	})

	t.Run("oversized length prefix", func(t *testing.T) {
		var header [4]byte
		binary.BigEndian.PutUint32(header[:], maxFrameSize+1)
		var got Envelope
		if err := ReadFrame(bytes.NewReader(header[:]), &got); err == nil {
			t.Error("Expected an error for an oversized frame")
		}
	})

	t.Run("truncated payload", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, Envelope{Auth: "a"}); err != nil {
			t.Fatal(err)
		}
		truncated := buf.Bytes()[:buf.Len()-3]
		var got Envelope
		if err := ReadFrame(bytes.NewReader(truncated), &got); err == nil {
			t.Error("Expected an error for a truncated payload")
		}
	})
}

func TestSubmit(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "basalt.sock")
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer listener.Close()

	received := make(chan Envelope, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var envelope Envelope
		if err := ReadFrame(conn, &envelope); err == nil {
			received <- envelope
		}
	}()

	job := capture.Job{Kind: capture.SourceClip}
	if err := Submit(socketPath, "secret", job); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	envelope := <-received
	if envelope.Auth != "secret" || envelope.Job.Kind != capture.SourceClip {
		t.Errorf("Unexpected envelope: %+v", envelope)
	}
}

func TestSubmitWithoutDaemon(t *testing.T) {
	err := Submit(filepath.Join(t.TempDir(), "missing.sock"), "secret", capture.Job{})
	if err == nil {
		t.Fatal("Expected an error when no daemon is listening")
	}
	if !strings.Contains(err.Error(), "failed to reach daemon") {
		t.Errorf("Expected a connection error, got %v", err)
	}
}
