package handler

import (
	"github.com/l1jgo/roster/internal/net"
	"github.com/l1jgo/roster/internal/net/packet"
	"go.uber.org/zap"
)

// HandleQuit processes C_QUIT. Only the session is closed here;
// InputSystem removes the player once it sees the closed session.
func HandleQuit(sess *net.Session, _ *packet.Reader, deps *Deps) {
	deps.Log.Info("client quit", zap.Uint64("session", sess.ID), zap.String("account", sess.AccountName))
	sess.Disconnect()
}
