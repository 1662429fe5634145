package protocol

// Wire-protocol limits.
const (
	// MaxNameLength is the maximum UTF-8 byte length of a nickname.
	// Nickname fields on the wire occupy MaxNameLength+1 bytes,
	// null-padded, so a name always carries a terminator slot.
	MaxNameLength = 32

	// NameFieldLen is the on-wire size of a nickname field.
	NameFieldLen = MaxNameLength + 1
)

// Header is the first part of every frame: the operation code and the
// sender nickname.
type Header struct {
	Op     Op
	Sender string
}

// Data is the second part of every frame: the receiver nickname and a
// length-prefixed payload. A nil or empty Buf is encoded as length 0
// with no payload bytes following.
type Data struct {
	Receiver string
	Buf      []byte
}

// Message is one full frame, header plus data.
type Message struct {
	Hdr  Header
	Data Data
}

// NewRequest builds a request frame.
func NewRequest(op Op, sender, receiver string, buf []byte) Message {
	return Message{
		Hdr:  Header{Op: op, Sender: sender},
		Data: Data{Receiver: receiver, Buf: buf},
	}
}

// Clone returns a deep copy of m. The payload buffer is copied so the
// clone is unaffected by later mutation of the original.
func (m Message) Clone() Message {
	out := m
	if m.Data.Buf != nil {
		out.Data.Buf = make([]byte, len(m.Data.Buf))
		copy(out.Data.Buf, m.Data.Buf)
	}
	return out
}
