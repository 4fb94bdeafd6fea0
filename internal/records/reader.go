package records

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
)

// maxPayload bounds a single record so a corrupt length cannot trigger a
// huge allocation.
const maxPayload = 1 << 34

// Reader decodes records one at a time
type Reader struct {
	br      *bufio.Reader
	closer  io.Closer
	version uint16
	index   int
}

// Open opens a container file and checks its header
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record file: %w", err)
	}
	r, err := newReader(f, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// NewReader reads a container from r
func NewReader(r io.Reader) (*Reader, error) {
	return newReader(r, nil)
}

func newReader(r io.Reader, closer io.Closer) (*Reader, error) {
	rd := &Reader{br: bufio.NewReaderSize(r, 1<<20), closer: closer}

	var hdr [headerSize]byte
	if _, err := io.ReadFull(rd.br, hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if string(hdr[:4]) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, hdr[:4])
	}
	rd.version = binary.LittleEndian.Uint16(hdr[4:6])
	if rd.version != Version1 {
		return nil, fmt.Errorf("unsupported record format version %d", rd.version)
	}
	return rd, nil
}

// Version returns the container format version
func (r *Reader) Version() uint16 {
	return r.version
}

// Next returns the next record. It returns io.EOF after the last complete
// record and io.ErrUnexpectedEOF when the container ends mid-record.
func (r *Reader) Next() (Record, error) {
	var lenBuf [12]byte
	if _, err := io.ReadFull(r.br, lenBuf[:]); err != nil {
		return Record{}, err
	}
	if maskedCRC(lenBuf[:8]) != binary.LittleEndian.Uint32(lenBuf[8:]) {
		return Record{}, fmt.Errorf("%w: record %d length checksum", ErrCorrupt, r.index)
	}

	size := binary.LittleEndian.Uint64(lenBuf[:8])
	if size < payloadHeaderSize || size > maxPayload {
		return Record{}, fmt.Errorf("%w: record %d has length %d", ErrCorrupt, r.index, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.br, payload); err != nil {
		return Record{}, noEOF(err)
	}
	var crcBuf [4]byte
	if _, err := io.ReadFull(r.br, crcBuf[:]); err != nil {
		return Record{}, noEOF(err)
	}
	if mask(crc32.Checksum(payload, castagnoli)) != binary.LittleEndian.Uint32(crcBuf[:]) {
		return Record{}, fmt.Errorf("%w: record %d payload checksum", ErrCorrupt, r.index)
	}

	rec := Record{
		Height:        int(binary.LittleEndian.Uint32(payload[0:4])),
		Width:         int(binary.LittleEndian.Uint32(payload[4:8])),
		ImageChannels: int(binary.LittleEndian.Uint32(payload[8:12])),
		MaskChannels:  int(binary.LittleEndian.Uint32(payload[12:16])),
	}
	imageLen := rec.Height * rec.Width * rec.ImageChannels
	maskLen := rec.Height * rec.Width * rec.MaskChannels
	if imageLen < 0 || maskLen < 0 || uint64(payloadHeaderSize+imageLen+maskLen) != size {
		return Record{}, fmt.Errorf("%w: record %d shape does not match its length", ErrCorrupt, r.index)
	}
	rec.Image = payload[payloadHeaderSize : payloadHeaderSize+imageLen]
	rec.Mask = payload[payloadHeaderSize+imageLen:]

	r.index++
	return rec, nil
}

// Close closes the underlying file, if any
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func noEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
