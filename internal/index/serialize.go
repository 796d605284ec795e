package index

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// ErrSizeLimit is wrapped into a capacity BuildError when the serialized
// index exceeds the configured ceiling.
var ErrSizeLimit = fmt.Errorf("serialized index exceeds size limit")

// Encode writes the index as a single JSON object, token by token, without
// materializing the whole payload in memory first. Large token maps made the
// one-shot marshal path run out of memory, hence the incremental form.
func (ix Index) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, "{"); err != nil {
		return err
	}
	first := true
	for tok, lines := range ix {
		if !first {
			if _, err := io.WriteString(w, ","); err != nil {
				return err
			}
		}
		first = false

		key, err := json.Marshal(tok)
		if err != nil {
			return err
		}
		if _, err := w.Write(key); err != nil {
			return err
		}
		if _, err := io.WriteString(w, ":["); err != nil {
			return err
		}
		for i, n := range lines {
			if i > 0 {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, strconv.Itoa(n)); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "]"); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "}")
	return err
}

// EncodeLimited encodes like Encode but fails with ErrSizeLimit once more
// than limit bytes have been written. A limit of zero or less means no limit.
func (ix Index) EncodeLimited(w io.Writer, limit int64) error {
	if limit <= 0 {
		return ix.Encode(w)
	}
	lw := &limitWriter{w: w, remaining: limit}
	return ix.Encode(lw)
}

type limitWriter struct {
	w         io.Writer
	remaining int64
}

func (lw *limitWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > lw.remaining {
		return 0, ErrSizeLimit
	}
	n, err := lw.w.Write(p)
	lw.remaining -= int64(n)
	return n, err
}

// Parse reads a serialized index back into memory. Posting-list order in the
// blob is not significant; the result is normalized.
func Parse(r io.Reader) (Index, error) {
	var raw map[string][]int
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse index blob: %w", err)
	}
	ix := Index(raw)
	ix.normalize()
	return ix, nil
}
