// Package registry tracks registered users, their online state, and
// the bounded per-user message history.
package registry

import (
	"errors"
	"sync"

	"chatty/server/internal/protocol"
)

var (
	// ErrNickTaken is returned by Register when the nickname exists.
	ErrNickTaken = errors.New("nickname already registered")

	// ErrUnknownNick is returned when an operation names a nickname
	// that was never registered or has been unregistered.
	ErrUnknownNick = errors.New("unknown nickname")

	// ErrAlreadyOnline is returned by Connect for a user that already
	// has a live connection.
	ErrAlreadyOnline = errors.New("user already online")

	// ErrNotOnline is returned by Disconnect when the user has no live
	// connection, including the second of two disconnects for the same
	// descriptor.
	ErrNotOnline = errors.New("user not online")
)

type user struct {
	nick   string
	fd     int
	online bool
	hist   *history
}

// Registry is the shared user table. A single mutex guards the
// nickname map, the fd reverse map, the online counter, and every
// user's history. Direct sends to online peers happen outside this
// lock; callers look up descriptors here and write through the
// per-connection send lock.
type Registry struct {
	mu      sync.Mutex
	users   map[string]*user
	byFd    map[int]string
	online  int
	maxHist int
}

// New returns an empty registry whose per-user histories hold at most
// maxHist messages.
func New(maxHist int) *Registry {
	return &Registry{
		users:   make(map[string]*user),
		byFd:    make(map[int]string),
		maxHist: maxHist,
	}
}

// Register creates the user and marks them online on fd.
func (r *Registry) Register(nick string, fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[nick]; ok {
		return ErrNickTaken
	}
	r.users[nick] = &user{nick: nick, fd: fd, online: true, hist: newHistory(r.maxHist)}
	r.byFd[fd] = nick
	r.online++
	return nil
}

// Connect marks an existing user online on fd.
func (r *Registry) Connect(nick string, fd int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[nick]
	if !ok {
		return ErrUnknownNick
	}
	if u.online {
		return ErrAlreadyOnline
	}
	u.online = true
	u.fd = fd
	r.byFd[fd] = nick
	r.online++
	return nil
}

// Disconnect marks a user offline. With a nickname it acts on that
// user; with an empty nickname it resolves the user through the fd
// reverse map, which is how a dropped connection is torn down. The
// resolved nickname is returned. Disconnecting twice for the same
// descriptor yields ErrNotOnline the second time.
func (r *Registry) Disconnect(nick string, fd int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if nick == "" {
		var ok bool
		if nick, ok = r.byFd[fd]; !ok {
			return "", ErrNotOnline
		}
	}
	u, ok := r.users[nick]
	if !ok {
		return nick, ErrUnknownNick
	}
	if !u.online {
		return nick, ErrNotOnline
	}
	u.online = false
	delete(r.byFd, u.fd)
	u.fd = 0
	r.online--
	return nick, nil
}

// Unregister removes the user record entirely, history included. An
// online user is taken offline as part of the removal.
func (r *Registry) Unregister(nick string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[nick]
	if !ok {
		return ErrUnknownNick
	}
	if u.online {
		delete(r.byFd, u.fd)
		r.online--
	}
	delete(r.users, nick)
	return nil
}

// LookupFD resolves a nickname to its current descriptor. The online
// flag distinguishes an offline user (fd meaningless) from an online
// one.
func (r *Registry) LookupFD(nick string) (fd int, online bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[nick]
	if !ok {
		return 0, false, ErrUnknownNick
	}
	if !u.online {
		return 0, false, nil
	}
	return u.fd, true, nil
}

// NickByFD resolves the user currently online on fd.
func (r *Registry) NickByFD(fd int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nick, ok := r.byFd[fd]
	return nick, ok
}

// Online returns the number of users currently online.
func (r *Registry) Online() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

// Registered returns the number of registered users.
func (r *Registry) Registered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// OnlineList returns the nicknames of every online user, each encoded
// as a fixed null-padded name field, concatenated. This is the USRLIST
// reply payload.
func (r *Registry) OnlineList() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]byte, 0, r.online*protocol.NameFieldLen)
	for _, nick := range r.byFd {
		var field [protocol.NameFieldLen]byte
		copy(field[:], nick)
		out = append(out, field[:]...)
	}
	return out
}

// OnlineFDs returns the descriptors of every online user except the
// named one.
func (r *Registry) OnlineFDs(except string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, r.online)
	for fd, nick := range r.byFd {
		if nick == except {
			continue
		}
		out = append(out, fd)
	}
	return out
}

// PostHistory pushes a copy of m onto the recipient's history. The
// caller has already re-tagged the op to its delivered form.
func (r *Registry) PostHistory(nick string, m protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[nick]
	if !ok {
		return ErrUnknownNick
	}
	u.hist.push(m)
	return nil
}

// PostHistoryAll pushes a copy of m onto every user's history except
// the sender's and returns the number of pushes.
func (r *Registry) PostHistoryAll(sender string, m protocol.Message) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for nick, u := range r.users {
		if nick == sender {
			continue
		}
		u.hist.push(m)
		n++
	}
	return n
}

// History returns a deep-copied snapshot of the user's stored
// messages, oldest first. The stored history is left intact, and the
// snapshot can be walked without any lock held.
func (r *Registry) History(nick string) ([]protocol.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[nick]
	if !ok {
		return nil, ErrUnknownNick
	}
	return u.hist.snapshot(), nil
}
