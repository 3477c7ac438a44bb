package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderLen is the size of the fixed record header.
const HeaderLen = 12

// Control bytes.
const (
	CtrlStatusOK      byte = 0
	CtrlStatusKO      byte = 1
	CtrlParseTemplate byte = 10
)

// Content formats.
const (
	FormatJSON    byte = 10
	FormatPath    byte = 20
	FormatText    byte = 30
	FormatBin     byte = 40
	FormatMsgpack byte = 50
)

var (
	// ErrRecordTooLarge is returned when a record announces more content than
	// the reader accepts.
	ErrRecordTooLarge = errors.New("ipc record too large")

	// ErrShortRecord is returned when the peer closes the connection in the
	// middle of a record.
	ErrShortRecord = errors.New("ipc record truncated")
)

// Record is one message on the wire: a 12-byte header followed by two content
// blocks. Both directions use the same layout.
//
//	byte 0      reserved, always 0
//	byte 1      control
//	byte 2      format of content 1
//	bytes 3-6   length of content 1, big-endian
//	byte 7      format of content 2
//	bytes 8-11  length of content 2, big-endian
type Record struct {
	Control  byte
	Format1  byte
	Content1 []byte
	Format2  byte
	Content2 []byte
}

// header encodes the fixed header of r.
func (r *Record) header() []byte {
	h := make([]byte, HeaderLen)
	h[1] = r.Control
	h[2] = r.Format1
	binary.BigEndian.PutUint32(h[3:7], uint32(len(r.Content1)))
	h[7] = r.Format2
	binary.BigEndian.PutUint32(h[8:12], uint32(len(r.Content2)))
	return h
}

// WriteTo writes the whole record to w.
func (r *Record) WriteTo(w io.Writer) (int64, error) {
	buf := make([]byte, 0, HeaderLen+len(r.Content1)+len(r.Content2))
	buf = append(buf, r.header()...)
	buf = append(buf, r.Content1...)
	buf = append(buf, r.Content2...)
	n, err := w.Write(buf)
	return int64(n), err
}

// ReadRecord reads one record from rd. When maxSize is positive, records whose
// content exceeds it are rejected before any content is read.
func ReadRecord(rd io.Reader, maxSize int) (*Record, error) {
	h := make([]byte, HeaderLen)
	if _, err := io.ReadFull(rd, h); err != nil {
		return nil, shortRead("header", err)
	}

	len1 := binary.BigEndian.Uint32(h[3:7])
	len2 := binary.BigEndian.Uint32(h[8:12])
	total := uint64(len1) + uint64(len2)
	if maxSize > 0 && total > uint64(maxSize) {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrRecordTooLarge, total, maxSize)
	}

	r := &Record{
		Control: h[1],
		Format1: h[2],
		Format2: h[7],
	}
	var err error
	if r.Content1, err = readContent(rd, len1); err != nil {
		return nil, shortRead("content 1", err)
	}
	if r.Content2, err = readContent(rd, len2); err != nil {
		return nil, shortRead("content 2", err)
	}
	return r, nil
}

func readContent(rd io.Reader, n uint32) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(rd, b); err != nil {
		return nil, err
	}
	return b, nil
}

func shortRead(part string, err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s", ErrShortRecord, part)
	}
	return fmt.Errorf("failed to read %s: %w", part, err)
}
