package records

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Writer appends records to a container. It is safe for concurrent use;
// records land in the order Write is called.
type Writer struct {
	mu     sync.Mutex
	bw     *bufio.Writer
	closer io.Closer
	offset int64
	count  int
	closed bool
}

// Create creates (or truncates) a container file and writes its header
func Create(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create record file: %w", err)
	}
	w, err := newWriter(f, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// NewWriter writes a container to w. Close flushes but does not close w.
func NewWriter(w io.Writer) (*Writer, error) {
	return newWriter(w, nil)
}

func newWriter(w io.Writer, closer io.Closer) (*Writer, error) {
	wr := &Writer{bw: bufio.NewWriterSize(w, 1<<20), closer: closer}

	var hdr [headerSize]byte
	copy(hdr[:4], Magic)
	binary.LittleEndian.PutUint16(hdr[4:6], Version1)
	if _, err := wr.bw.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := wr.bw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	wr.offset = headerSize
	return wr, nil
}

// Write appends one record and flushes it. It returns the record's byte
// offset in the container and its framed length.
func (w *Writer) Write(rec Record) (offset int64, length int64, err error) {
	if err := rec.Validate(); err != nil {
		return 0, 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, 0, errors.New("write to closed record writer")
	}

	var lenBuf [12]byte
	binary.LittleEndian.PutUint64(lenBuf[:8], uint64(rec.payloadSize()))
	binary.LittleEndian.PutUint32(lenBuf[8:], maskedCRC(lenBuf[:8]))

	var shape [payloadHeaderSize]byte
	binary.LittleEndian.PutUint32(shape[0:4], uint32(rec.Height))
	binary.LittleEndian.PutUint32(shape[4:8], uint32(rec.Width))
	binary.LittleEndian.PutUint32(shape[8:12], uint32(rec.ImageChannels))
	binary.LittleEndian.PutUint32(shape[12:16], uint32(rec.MaskChannels))

	crc := crc32.New(castagnoli)
	payload := io.MultiWriter(w.bw, crc)

	if _, err := w.bw.Write(lenBuf[:]); err != nil {
		return 0, 0, fmt.Errorf("failed to write record length: %w", err)
	}
	for _, part := range [][]byte{shape[:], rec.Image, rec.Mask} {
		if _, err := payload.Write(part); err != nil {
			return 0, 0, fmt.Errorf("failed to write record payload: %w", err)
		}
	}

	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], mask(crc.Sum32()))
	if _, err := w.bw.Write(crcBuf[:]); err != nil {
		return 0, 0, fmt.Errorf("failed to write record checksum: %w", err)
	}
	if err := w.bw.Flush(); err != nil {
		return 0, 0, fmt.Errorf("failed to flush record: %w", err)
	}

	offset = w.offset
	length = int64(len(lenBuf) + rec.payloadSize() + len(crcBuf))
	w.offset += length
	w.count++
	return offset, length, nil
}

// Count returns the number of records written so far
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes buffered data and closes the underlying file, if any.
// Calling Close more than once is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	err := w.bw.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close record file: %w", err)
	}
	return nil
}
