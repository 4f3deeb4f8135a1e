// Package ipc is the local channel between clients and the daemon: a unix
// socket carrying length-framed JSON envelopes guarded by a shared secret.
// Exactly one envelope travels per connection and nothing comes back;
// capture is fire-and-forget by design.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"

	"github.com/basalt-app/basalt/internal/capture"
)

// maxFrameSize bounds a single envelope so a garbage length prefix cannot
// make the daemon allocate unbounded memory.
const maxFrameSize = 16 << 20

// Envelope wraps one capture job with the shared secret.
type Envelope struct {
	Auth string      `json:"auth"`
	Job  capture.Job `json:"job"`
}

// WriteFrame writes v as a big-endian length prefix followed by JSON.
func WriteFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	if len(payload) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit", len(payload))
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("failed to write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON frame into v.
func ReadFrame(r io.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("failed to read frame header: %w", err)
	}
	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > maxFrameSize {
		return fmt.Errorf("invalid frame size %d", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("failed to read frame payload: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	return nil
}

// Submit connects to the daemon socket, sends one job, and disconnects.
// Success means the job was handed off, not that it will produce cards.
func Submit(socketPath, authKey string, job capture.Job) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", socketPath, err)
	}
	defer conn.Close()

	return WriteFrame(conn, Envelope{Auth: authKey, Job: job})
}
