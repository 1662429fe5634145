package protocol

// Op identifies a request, a delivered message kind, or a server reply.
// The numeric values are part of the wire contract shared with clients
// and must never be renumbered.
type Op uint32

const (
	// Client requests.
	RegisterOp    Op = 0
	ConnectOp     Op = 1
	PostTxtOp     Op = 2
	PostTxtAllOp  Op = 3
	PostFileOp    Op = 4
	GetFileOp     Op = 5
	GetPrevMsgsOp Op = 6
	UsrListOp     Op = 7
	UnregisterOp  Op = 8
	DisconnectOp  Op = 9

	// Message kinds delivered to recipients (directly or via history).
	TxtMessage  Op = 16
	FileMessage Op = 17

	// Server replies.
	OpOK          Op = 20
	OpFail        Op = 21
	OpNickAlready Op = 22
	OpNickUnknown Op = 23
	OpMsgTooLong  Op = 24
	OpNoSuchFile  Op = 25
)

func (o Op) String() string {
	switch o {
	case RegisterOp:
		return "REGISTER"
	case ConnectOp:
		return "CONNECT"
	case PostTxtOp:
		return "POSTTXT"
	case PostTxtAllOp:
		return "POSTTXTALL"
	case PostFileOp:
		return "POSTFILE"
	case GetFileOp:
		return "GETFILE"
	case GetPrevMsgsOp:
		return "GETPREVMSGS"
	case UsrListOp:
		return "USRLIST"
	case UnregisterOp:
		return "UNREGISTER"
	case DisconnectOp:
		return "DISCONNECT"
	case TxtMessage:
		return "TXT_MESSAGE"
	case FileMessage:
		return "FILE_MESSAGE"
	case OpOK:
		return "OP_OK"
	case OpFail:
		return "OP_FAIL"
	case OpNickAlready:
		return "OP_NICK_ALREADY"
	case OpNickUnknown:
		return "OP_NICK_UNKNOWN"
	case OpMsgTooLong:
		return "OP_MSG_TOOLONG"
	case OpNoSuchFile:
		return "OP_NO_SUCH_FILE"
	}
	return "OP_UNKNOWN"
}

// Request reports whether o is an operation a client may submit.
func (o Op) Request() bool {
	return o <= DisconnectOp
}
