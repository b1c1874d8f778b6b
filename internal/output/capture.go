package output

import (
	"bufio"
	"errors"
	"os"
)

var ErrLimitReached = errors.New("capture limit reached")

// CaptureWriter appends whole lines to a capture file. It is not safe for
// concurrent use; a run has exactly one writer.
type CaptureWriter struct {
	f        *os.File
	w        *bufio.Writer
	maxBytes uint64

	bytes uint64
	lines uint64

	flushEvery uint64
}

// OpenCapture opens path for appending, creating it with mode 0600 when
// missing. created reports whether this call created the file.
func OpenCapture(path string, maxBytes, flushEvery uint64) (cw *CaptureWriter, created bool, err error) {
	_, statErr := os.Stat(path)
	created = errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, false, err
	}
	return &CaptureWriter{
		f:          f,
		w:          bufio.NewWriterSize(f, 64*1024),
		maxBytes:   maxBytes,
		flushEvery: max(1, flushEvery),
	}, created, nil
}

// WriteLine appends line plus a newline. A zero maxBytes means no limit; the
// line that would cross the limit is not written.
func (c *CaptureWriter) WriteLine(line string) error {
	n := uint64(len(line)) + 1
	if c.maxBytes > 0 && c.bytes+n > c.maxBytes {
		return ErrLimitReached
	}
	if _, err := c.w.WriteString(line); err != nil {
		return err
	}
	if err := c.w.WriteByte('\n'); err != nil {
		return err
	}

	c.lines++
	c.bytes += n

	if c.lines%c.flushEvery == 0 {
		return c.w.Flush()
	}
	return nil
}

func (c *CaptureWriter) Stats() (lines uint64, bytes uint64) {
	return c.lines, c.bytes
}

// Close flushes buffered lines and closes the file. The first error wins.
func (c *CaptureWriter) Close() error {
	ferr := c.w.Flush()
	cerr := c.f.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}
