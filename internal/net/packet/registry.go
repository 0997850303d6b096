package packet

import (
	"fmt"

	"go.uber.org/zap"
)

// SessionState is the session's protocol phase.
type SessionState int

const (
	StateHandshake     SessionState = iota
	StateVersionOK                  // version accepted, awaiting login
	StateAuthenticated              // logged in, no character in world
	StateInWorld                    // character in world
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateHandshake:
		return "Handshake"
	case StateVersionOK:
		return "VersionOK"
	case StateAuthenticated:
		return "Authenticated"
	case StateInWorld:
		return "InWorld"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc handles one packet. The session is passed as an opaque value
// so that this package does not depend on net.
type HandlerFunc func(sess any, r *Reader)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionState]bool
}

// Registry maps opcodes to handlers with state-based access control.
type Registry struct {
	handlers map[byte]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		handlers: make(map[byte]*handlerEntry),
		log:      log,
	}
}

// Register maps an opcode to a handler allowed in the given states.
func (reg *Registry) Register(opcode byte, states []SessionState, fn HandlerFunc) {
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[opcode] = &handlerEntry{fn: fn, allowedStates: allowed}
}

// Dispatch runs the handler for data[0] if the state allows it. Unknown
// opcodes are ignored; a disallowed state or a handler panic is an error.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty packet")
	}
	opcode := data[0]
	reg.log.Debug("packet received",
		zap.String("op", opName(opcode)),
		zap.Int("size", len(data)),
		zap.Stringer("state", state),
	)

	entry, ok := reg.handlers[opcode]
	if !ok {
		return nil
	}
	if !entry.allowedStates[state] {
		reg.log.Warn("opcode not allowed in state",
			zap.String("op", opName(opcode)),
			zap.Stringer("state", state),
		)
		return fmt.Errorf("opcode %d not allowed in state %s", opcode, state)
	}
	return reg.safeCall(entry.fn, sess, NewReader(data), opcode)
}

// safeCall keeps a single bad packet from crashing the game loop.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, r *Reader, opcode byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.String("op", opName(opcode)),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for opcode %d: %v", opcode, rec)
		}
	}()
	fn(sess, r)
	return nil
}

func opName(op byte) string {
	if name := ClientOpcodeName(op); name != "" {
		return name
	}
	return fmt.Sprintf("0x%02X", op)
}
