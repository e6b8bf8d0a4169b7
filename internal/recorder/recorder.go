// Package recorder writes a newline-delimited JSON trace of record deliveries.
package recorder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Recorder captures deliveries from all sessions.
// Thread-safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	count  int
}

// New creates a Recorder. If w is nil, deliveries are only counted.
func New(w io.Writer) *Recorder {
	r := &Recorder{}
	if w != nil {
		r.enc = json.NewEncoder(w)
	}
	return r
}

// OpenFile creates (or truncates) path and traces into it.
func OpenFile(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating trace file: %w", err)
	}
	r := New(f)
	r.closer = f
	return r, nil
}

// Record writes a single delivery.
func (r *Recorder) Record(d Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.count++
	if r.enc != nil {
		if err := r.enc.Encode(d); err != nil {
			return fmt.Errorf("writing trace: %w", err)
		}
	}
	return nil
}

// Len returns the number of recorded deliveries.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close closes the trace file opened by OpenFile.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	r.enc = nil
	return err
}

// Load reads a trace written by a Recorder.
func Load(rd io.Reader) ([]Delivery, error) {
	var out []Delivery
	dec := json.NewDecoder(rd)
	for {
		var d Delivery
		err := dec.Decode(&d)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("decoding trace: %w", err)
		}
		out = append(out, d)
	}
}
