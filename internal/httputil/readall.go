package httputil

import (
	"fmt"
	"io"
)

// ReadAllWithLimit reads at most limit bytes and reports whether the source
// held more.
func ReadAllWithLimit(r io.Reader, limit int64) (data []byte, truncated bool, err error) {
	data, err = io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) == limit {
		var probe [1]byte
		n, probeErr := r.Read(probe[:])
		if n > 0 {
			truncated = true
		}
		if probeErr != nil && probeErr != io.EOF {
			return data, truncated, probeErr
		}
	}
	return data, truncated, nil
}

// ReadAllStrict reads the whole source but fails when it exceeds limit.
func ReadAllStrict(r io.Reader, limit int64) ([]byte, error) {
	data, truncated, err := ReadAllWithLimit(r, limit)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("response exceeds %d byte limit", limit)
	}
	return data, nil
}
