package handler

import (
	"context"
	"strings"
	"time"

	"github.com/l1jgo/roster/internal/core/disposer"
	"github.com/l1jgo/roster/internal/net"
	"github.com/l1jgo/roster/internal/net/packet"
	"github.com/l1jgo/roster/internal/world"
	"go.uber.org/zap"
)

// S_LOGIN_RESULT codes.
const (
	loginOK           byte = 0x00
	loginWrongPass    byte = 0x08
	loginBanned       byte = 0x09
	loginAccountInUse byte = 0x16
)

// taskEnterDeadline is the per-player task that drops clients lingering at
// character select.
const taskEnterDeadline = "enter-world-deadline"

// HandleLogin processes C_LOGIN: [S account][S password].
func HandleLogin(sess *net.Session, r *packet.Reader, deps *Deps) {
	accountName := strings.ToLower(r.ReadS())
	password := r.ReadS()
	log := deps.Log.With(zap.Uint64("session", sess.ID), zap.String("account", accountName))

	if accountName == "" {
		sendLoginResult(sess, loginWrongPass)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	account, err := deps.Accounts.Load(ctx, accountName)
	if err != nil {
		log.Error("load account failed", zap.Error(err))
		sendLoginResult(sess, loginWrongPass)
		return
	}

	if account == nil {
		if !deps.Config.Character.AutoCreateAccounts {
			sendLoginResult(sess, loginWrongPass)
			return
		}
		account, err = deps.Accounts.Create(ctx, accountName, password, sess.IP)
		if err != nil {
			log.Error("create account failed", zap.Error(err))
			sendLoginResult(sess, loginWrongPass)
			return
		}
		log.Info("account auto-created")
	} else if !deps.Accounts.ValidatePassword(account.PasswordHash, password) {
		sendLoginResult(sess, loginWrongPass)
		return
	}

	if account.Banned {
		log.Info("banned account tried to log in")
		sendLoginResult(sess, loginBanned)
		return
	}
	if deps.Roster.PlayerByAccount(accountName) != nil {
		sendLoginResult(sess, loginAccountInUse)
		return
	}

	player, err := deps.Roster.AddPlayer(sess.ID, accountName, sess)
	if err != nil {
		log.Error("add player failed", zap.Error(err))
		sendLoginResult(sess, loginWrongPass)
		return
	}
	sess.AccountName = accountName
	sess.SetState(packet.StateAuthenticated)
	sendLoginResult(sess, loginOK)

	if err := deps.Accounts.SetOnline(ctx, accountName, true); err != nil {
		log.Error("set online failed", zap.Error(err))
	}
	trackPlayer(player, deps, log)
	armEnterDeadline(player, deps)

	log.Info("login ok", zap.String("ip", sess.IP))
}

// trackPlayer wires per-player roster watches: the session's character name
// follows the character in world, and the account goes offline when the
// player is removed.
func trackPlayer(p *world.Player, deps *Deps, log *zap.Logger) {
	sess := p.Session
	if _, err := deps.Coord.WatchSubordinate(p, func(ch *world.Character, scope *disposer.Registry) {
		sess.CharName = ch.Name
		_ = scope.Add(func() { sess.CharName = "" }, disposer.Call)
	}); err != nil {
		log.Error("watch character failed", zap.Error(err))
	}

	account := p.AccountName
	if _, err := deps.Coord.OnPrimaryRemoved(p, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := deps.Accounts.SetOnline(ctx, account, false); err != nil {
			log.Error("set offline failed", zap.Error(err))
		}
	}); err != nil {
		log.Error("watch removal failed", zap.Error(err))
	}
}

// armEnterDeadline drops the client if it has not entered the world before
// [roster] enter_world_timeout. The timer is a player task, so leaving the
// roster stops it.
func armEnterDeadline(p *world.Player, deps *Deps) {
	d := deps.Config.Roster.EnterWorldTimeout
	if d <= 0 {
		return
	}
	timer := time.AfterFunc(d, func() {
		deps.Exec.Post(func() {
			if p.InWorld() || p.Session == nil || p.Session.IsClosed() {
				return
			}
			deps.Log.Info("idle at character select, disconnecting", zap.Uint64("session", p.SessionID))
			SendDisconnect(p.Session, DisconnectIdle)
			p.Session.Disconnect()
		})
	})
	if _, err := p.Tasks.AddTask(timer, disposer.Default, taskEnterDeadline); err != nil {
		deps.Log.Warn("replace enter deadline failed", zap.Error(err))
	}
}
