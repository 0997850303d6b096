package handler

import (
	"github.com/Masterminds/semver/v3"
	"github.com/l1jgo/roster/internal/net"
	"github.com/l1jgo/roster/internal/net/packet"
	"go.uber.org/zap"
)

// HandleVersion processes C_VERSION: [S client version].
// Accepted clients get S_VERSION_CHECK and move to VersionOK; others get
// S_DISCONNECT.
func HandleVersion(sess *net.Session, r *packet.Reader, deps *Deps) {
	raw := r.ReadS()

	if deps.ClientVersion != nil {
		v, err := semver.NewVersion(raw)
		if err != nil || !deps.ClientVersion.Check(v) {
			deps.Log.Info("client version rejected",
				zap.Uint64("session", sess.ID),
				zap.String("version", raw),
				zap.Stringer("want", deps.ClientVersion),
			)
			SendDisconnect(sess, DisconnectClientVersion)
			sess.Disconnect()
			return
		}
	}
	deps.Log.Debug("client version accepted", zap.Uint64("session", sess.ID), zap.String("version", raw))

	cfg := deps.Config
	w := packet.NewWriter(packet.S_VERSION_CHECK)
	w.WriteC(0x00) // ok
	w.WriteC(byte(cfg.Server.ID))
	w.WriteS(cfg.Server.Version)
	w.WriteD(int32(cfg.Server.StartTime))
	sess.Send(w.Bytes())
	sess.SetState(packet.StateVersionOK)
}
