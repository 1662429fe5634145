package registry

import "chatty/server/internal/protocol"

// history is a bounded FIFO of messages kept for a user while they are
// offline. When full, the oldest message is dropped to make room.
// Every message is deep-copied on the way in and on the way out, so
// callers can never alias a stored payload buffer.
type history struct {
	buf   []protocol.Message
	head  int
	count int
}

func newHistory(capacity int) *history {
	if capacity < 1 {
		capacity = 1
	}
	return &history{buf: make([]protocol.Message, capacity)}
}

func (h *history) push(m protocol.Message) {
	if h.count == len(h.buf) {
		h.buf[h.head] = protocol.Message{}
		h.head = (h.head + 1) % len(h.buf)
		h.count--
	}
	h.buf[(h.head+h.count)%len(h.buf)] = m.Clone()
	h.count++
}

func (h *history) snapshot() []protocol.Message {
	out := make([]protocol.Message, 0, h.count)
	for i := 0; i < h.count; i++ {
		out = append(out, h.buf[(h.head+i)%len(h.buf)].Clone())
	}
	return out
}
