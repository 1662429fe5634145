package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// The frame layout is fixed and packed:
//
//	header = op:uint32 | sender:[NameFieldLen]byte
//	data   = receiver:[NameFieldLen]byte | len:uint32 | buf[len]
//	frame  = header | data
//
// Integers are little-endian. Name fields are null-padded.
const (
	headerSize   = 4 + NameFieldLen
	dataHdrSize  = NameFieldLen + 4
	maxFrameData = 1 << 30 // sanity cap against corrupt length fields
)

// ErrNameTooLong is returned when a nickname exceeds MaxNameLength bytes.
var ErrNameTooLong = fmt.Errorf("nickname exceeds %d bytes", MaxNameLength)

func putName(dst []byte, name string) error {
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	copy(dst, name)
	for i := len(name); i < NameFieldLen; i++ {
		dst[i] = 0
	}
	return nil
}

func getName(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		return string(src[:i])
	}
	return string(src)
}

// ReadHeader reads one frame header from r. io.EOF means the peer
// closed the connection cleanly before sending anything.
func ReadHeader(r io.Reader) (Header, error) {
	var raw [headerSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		if err == io.EOF {
			return Header{}, io.EOF
		}
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	return Header{
		Op:     Op(binary.LittleEndian.Uint32(raw[0:4])),
		Sender: getName(raw[4:]),
	}, nil
}

// ReadData reads one data block (receiver, length, payload) from r.
func ReadData(r io.Reader) (Data, error) {
	var raw [dataHdrSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		if err == io.EOF {
			return Data{}, io.EOF
		}
		return Data{}, fmt.Errorf("read data header: %w", err)
	}
	d := Data{Receiver: getName(raw[:NameFieldLen])}
	n := binary.LittleEndian.Uint32(raw[NameFieldLen:])
	if n == 0 {
		return d, nil
	}
	if n > maxFrameData {
		return Data{}, fmt.Errorf("data length %d exceeds frame cap", n)
	}
	d.Buf = make([]byte, n)
	if _, err := io.ReadFull(r, d.Buf); err != nil {
		return Data{}, fmt.Errorf("read payload: %w", err)
	}
	return d, nil
}

// ReadMsg reads one full frame (header followed by data) from r.
func ReadMsg(r io.Reader) (Message, error) {
	hdr, err := ReadHeader(r)
	if err != nil {
		return Message{}, err
	}
	data, err := ReadData(r)
	if err != nil {
		return Message{}, err
	}
	return Message{Hdr: hdr, Data: data}, nil
}

func appendHeader(dst []byte, h Header) ([]byte, error) {
	var raw [headerSize]byte
	binary.LittleEndian.PutUint32(raw[0:4], uint32(h.Op))
	if err := putName(raw[4:], h.Sender); err != nil {
		return nil, err
	}
	return append(dst, raw[:]...), nil
}

func appendData(dst []byte, d Data) ([]byte, error) {
	var raw [dataHdrSize]byte
	if err := putName(raw[:NameFieldLen], d.Receiver); err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint32(raw[NameFieldLen:], uint32(len(d.Buf)))
	return append(append(dst, raw[:]...), d.Buf...), nil
}

// WriteHeader writes one frame header to w.
func WriteHeader(w io.Writer, h Header) error {
	buf, err := appendHeader(nil, h)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// WriteData writes one data block to w.
func WriteData(w io.Writer, d Data) error {
	buf, err := appendData(nil, d)
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

// WriteMsg writes one full frame to w as a single Write call, so a
// frame is never interleaved with another writer holding the same
// connection lock boundary.
func WriteMsg(w io.Writer, m Message) error {
	buf, err := appendHeader(nil, m.Hdr)
	if err != nil {
		return err
	}
	if buf, err = appendData(buf, m.Data); err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
