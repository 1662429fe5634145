package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMsgRoundTrip(t *testing.T) {
	t.Parallel()

	in := NewRequest(PostTxtOp, "alice", "bob", []byte("hello there"))

	var buf bytes.Buffer
	if err := WriteMsg(&buf, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadMsg(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if out.Hdr.Op != PostTxtOp || out.Hdr.Sender != "alice" {
		t.Fatalf("header mismatch: %+v", out.Hdr)
	}
	if out.Data.Receiver != "bob" || !bytes.Equal(out.Data.Buf, in.Data.Buf) {
		t.Fatalf("data mismatch: %+v", out.Data)
	}
}

func TestZeroLengthPayload(t *testing.T) {
	t.Parallel()

	in := NewRequest(UsrListOp, "alice", "", nil)

	var buf bytes.Buffer
	if err := WriteMsg(&buf, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := buf.Len(); got != headerSize+dataHdrSize {
		t.Fatalf("frame length %d, want %d (no payload bytes)", got, headerSize+dataHdrSize)
	}
	out, err := ReadMsg(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out.Data.Buf) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(out.Data.Buf))
	}
}

func TestMaxLengthNameFits(t *testing.T) {
	t.Parallel()

	name := strings.Repeat("n", MaxNameLength)
	var buf bytes.Buffer
	if err := WriteHeader(&buf, Header{Op: RegisterOp, Sender: name}); err != nil {
		t.Fatalf("write max-length name: %v", err)
	}
	hdr, err := ReadHeader(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if hdr.Sender != name {
		t.Fatalf("sender %q, want %d-byte name", hdr.Sender, MaxNameLength)
	}
}

func TestOverlongNameRejected(t *testing.T) {
	t.Parallel()

	name := strings.Repeat("n", MaxNameLength+1)
	var buf bytes.Buffer
	err := WriteHeader(&buf, Header{Op: RegisterOp, Sender: name})
	if !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("got %v, want ErrNameTooLong", err)
	}
}

func TestOrderlyCloseIsEOF(t *testing.T) {
	t.Parallel()

	_, err := ReadHeader(bytes.NewReader(nil))
	if err != io.EOF {
		t.Fatalf("got %v, want io.EOF for empty stream", err)
	}
}

func TestTruncatedFrameIsError(t *testing.T) {
	t.Parallel()

	in := NewRequest(PostTxtOp, "alice", "bob", []byte("truncate me"))
	var buf bytes.Buffer
	if err := WriteMsg(&buf, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	cut := buf.Bytes()[:buf.Len()-4]

	_, err := ReadMsg(bytes.NewReader(cut))
	if err == nil || err == io.EOF {
		t.Fatalf("got %v, want a non-EOF error for a truncated frame", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	in := NewRequest(PostTxtOp, "alice", "bob", []byte("shared"))
	cp := in.Clone()
	in.Data.Buf[0] = 'X'
	if string(cp.Data.Buf) != "shared" {
		t.Fatalf("clone aliased the original buffer: %q", cp.Data.Buf)
	}
}
