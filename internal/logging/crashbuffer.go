package logging

import (
	"os"
	"sync"
)

// CrashBuffer is a thread-safe circular byte buffer holding the most recent
// log output. It implements io.Writer and overwrites old data when full, so
// a crash dump always contains the tail of the log regardless of rotation.
type CrashBuffer struct {
	mu   sync.Mutex
	buf  []byte
	size int
	pos  int
	full bool
}

// NewCrashBuffer creates a crash buffer with the given capacity in bytes.
func NewCrashBuffer(size int) *CrashBuffer {
	if size <= 0 {
		size = 1024 * 1024
	}
	return &CrashBuffer{
		buf:  make([]byte, size),
		size: size,
	}
}

// Write implements io.Writer. Data wraps around when the buffer is full.
func (cb *CrashBuffer) Write(p []byte) (int, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	n := len(p)
	if n >= cb.size {
		// Data larger than buffer: keep only the last cb.size bytes
		copy(cb.buf, p[n-cb.size:])
		cb.pos = 0
		cb.full = true
		return n, nil
	}

	space := cb.size - cb.pos
	if n <= space {
		copy(cb.buf[cb.pos:], p)
		cb.pos += n
		if cb.pos == cb.size {
			cb.pos = 0
			cb.full = true
		}
	} else {
		copy(cb.buf[cb.pos:], p[:space])
		copy(cb.buf, p[space:])
		cb.pos = n - space
		cb.full = true
	}

	return n, nil
}

// Bytes returns the buffer contents in chronological order.
func (cb *CrashBuffer) Bytes() []byte {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.full {
		out := make([]byte, cb.pos)
		copy(out, cb.buf[:cb.pos])
		return out
	}

	out := make([]byte, cb.size)
	copy(out, cb.buf[cb.pos:])
	copy(out[cb.size-cb.pos:], cb.buf[:cb.pos])
	return out
}

// DumpToFile writes the buffer contents to a file in chronological order.
func (cb *CrashBuffer) DumpToFile(path string) error {
	return os.WriteFile(path, cb.Bytes(), 0o644)
}
