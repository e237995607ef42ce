// Package rwbuf implements a buffered file handle that holds either a
// read buffer or a write buffer over the same random-access file and
// flips between the two on demand: a write after a read re-anchors the
// underlying offset with a zero-distance seek instead of flushing, and
// a read after a write flushes first. The store performs many
// sequential writes punctuated by occasional seeks, and flushing on
// every mode change would halve import throughput.
package rwbuf

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

type mode int

const (
	modeRead mode = iota
	modeWrite
)

const defaultBufSize = 64 * 1024

// RandomIO is a buffered reader/writer over an *os.File that can flip
// mode and seek. It is not safe for concurrent use.
type RandomIO struct {
	file *os.File
	mode mode
	r    *bufio.Reader
	w    *bufio.Writer
	// pos is the real OS file offset under the current buffer, i.e. the
	// offset bufio itself doesn't expose directly without reading back
	// through reflection. We track it ourselves so Seek/StreamPosition
	// don't need file.Seek round-trips for every call.
	pos int64
}

// NewReader opens f expecting a read as the first operation.
func NewReader(f *os.File) (*RandomIO, error) {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.Wrap(err, "unable to determine current file position")
	}
	return &RandomIO{file: f, mode: modeRead, r: bufio.NewReaderSize(f, defaultBufSize), pos: pos}, nil
}

// NewWriter opens f expecting a write as the first operation.
func NewWriter(f *os.File) (*RandomIO, error) {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, errors.Wrap(err, "unable to determine current file position")
	}
	return &RandomIO{file: f, mode: modeWrite, w: bufio.NewWriterSize(f, defaultBufSize), pos: pos}, nil
}

// Read reads into buf. If currently in write mode, flushes the write
// buffer and converts to read mode first.
func (rw *RandomIO) Read(buf []byte) (int, error) {
	if rw.mode == modeWrite {
		if err := rw.toReadMode(); err != nil {
			return 0, err
		}
	}
	n, err := rw.r.Read(buf)
	rw.pos += int64(n)
	return n, err
}

// Write writes buf. If currently in read mode, drops buffered read-ahead
// (via a zero-distance seek to re-anchor the underlying position) and
// converts to write mode first.
func (rw *RandomIO) Write(buf []byte) (int, error) {
	if rw.mode == modeRead {
		if err := rw.toWriteMode(); err != nil {
			return 0, err
		}
	}
	n, err := rw.w.Write(buf)
	rw.pos += int64(n)
	return n, err
}

// Seek seeks to an absolute position. A seek while in write mode flushes
// the write buffer first.
func (rw *RandomIO) Seek(pos int64) error {
	if rw.mode == modeWrite {
		if err := rw.w.Flush(); err != nil {
			return errors.Wrap(err, "unable to flush write buffer before seek")
		}
	}
	if _, err := rw.file.Seek(pos, io.SeekStart); err != nil {
		return errors.Wrapf(err, "unable to seek to offset %d", pos)
	}
	if rw.mode == modeRead {
		rw.r.Reset(rw.file)
	}
	rw.pos = pos
	return nil
}

// SeekRelative moves forward by delta bytes, preferred over Seek for
// small forward movements: while in read mode it stays inside the
// buffered reader (via bufio.Reader.Discard) instead of forcing a flush.
func (rw *RandomIO) SeekRelative(delta int64) error {
	if delta < 0 {
		return rw.Seek(rw.pos + delta)
	}
	if rw.mode == modeWrite {
		// Writing zero bytes would be wrong; a forward skip in write mode
		// has no buffered equivalent, so fall back to an absolute seek.
		return rw.Seek(rw.pos + delta)
	}
	n, err := rw.r.Discard(int(delta))
	rw.pos += int64(n)
	if err != nil {
		return errors.Wrap(err, "unable to discard buffered read-ahead")
	}
	return nil
}

// StreamPosition returns the logical position, including any queued
// write bytes not yet flushed to the OS.
func (rw *RandomIO) StreamPosition() int64 {
	return rw.pos
}

// IsReadMode reports whether the handle is currently buffering reads.
func (rw *RandomIO) IsReadMode() bool {
	return rw.mode == modeRead
}

// Flush writes out any buffered bytes. A no-op in read mode.
func (rw *RandomIO) Flush() error {
	if rw.mode == modeWrite {
		return errors.Wrap(rw.w.Flush(), "unable to flush write buffer")
	}
	return nil
}

// Close flushes (if needed) and closes the underlying file.
func (rw *RandomIO) Close() error {
	if err := rw.Flush(); err != nil {
		return err
	}
	return rw.file.Close()
}

func (rw *RandomIO) toReadMode() error {
	if err := rw.w.Flush(); err != nil {
		return errors.Wrap(err, "unable to flush write buffer before switching to read mode")
	}
	if rw.r == nil {
		rw.r = bufio.NewReaderSize(rw.file, defaultBufSize)
	} else {
		rw.r.Reset(rw.file)
	}
	rw.mode = modeRead
	return nil
}

func (rw *RandomIO) toWriteMode() error {
	// Zero-distance seek to re-anchor the underlying file position so the
	// reader's buffered read-ahead does not leak into the file: without
	// this, the OS file offset would sit past the last byte we actually
	// consumed from rw.r's internal buffer.
	if _, err := rw.file.Seek(rw.pos, io.SeekStart); err != nil {
		return errors.Wrap(err, "unable to re-anchor file position before switching to write mode")
	}
	if rw.w == nil {
		rw.w = bufio.NewWriterSize(rw.file, defaultBufSize)
	} else {
		rw.w.Reset(rw.file)
	}
	rw.mode = modeWrite
	return nil
}
