package packet

// Client → server opcodes.
const (
	C_VERSION     byte = 0x0E
	C_LOGIN       byte = 0x77
	C_ENTER_WORLD byte = 0x89
	C_LEAVE_WORLD byte = 0x8A
	C_QUIT        byte = 0x7A
)

// Server → client opcodes.
const (
	S_VERSION_CHECK byte = 0x8B
	S_LOGIN_RESULT  byte = 0x33
	S_ENTER_WORLD   byte = 0x3F
	S_LEAVE_WORLD   byte = 0x40
	S_MESSAGE       byte = 0x5A
	S_DISCONNECT    byte = 0x5F
)

var opcodeNames = map[byte]string{
	C_VERSION:     "C_VERSION",
	C_LOGIN:       "C_LOGIN",
	C_ENTER_WORLD: "C_ENTER_WORLD",
	C_LEAVE_WORLD: "C_LEAVE_WORLD",
	C_QUIT:        "C_QUIT",
}

// ClientOpcodeName returns the symbolic name of a client opcode, or "" if
// the opcode is unknown.
func ClientOpcodeName(op byte) string {
	return opcodeNames[op]
}
