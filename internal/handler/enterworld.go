package handler

import (
	"context"
	"time"

	"github.com/l1jgo/roster/internal/net"
	"github.com/l1jgo/roster/internal/net/packet"
	"github.com/l1jgo/roster/internal/world"
	"go.uber.org/zap"
)

// HandleEnterWorld processes C_ENTER_WORLD: [S character name].
func HandleEnterWorld(sess *net.Session, r *packet.Reader, deps *Deps) {
	charName := r.ReadS()
	log := deps.Log.With(zap.Uint64("session", sess.ID), zap.String("char", charName))

	player := deps.Roster.Player(sess.ID)
	if player == nil {
		log.Warn("enter world without a player")
		sess.Close()
		return
	}
	if charName == "" {
		SendMessage(sess, "Character name required.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row, err := deps.Characters.LoadByName(ctx, charName)
	if err != nil {
		log.Error("load character failed", zap.Error(err))
		SendMessage(sess, "Character unavailable.")
		return
	}
	if row == nil {
		if !deps.Config.Character.AutoCreateCharacters {
			SendMessage(sess, "No such character.")
			return
		}
		row, err = deps.Characters.Create(ctx, sess.AccountName, charName)
		if err != nil {
			log.Error("create character failed", zap.Error(err))
			SendMessage(sess, "Character unavailable.")
			return
		}
		log.Info("character auto-created")
	}
	if row.AccountName != sess.AccountName {
		log.Warn("character belongs to another account", zap.String("owner", row.AccountName))
		SendMessage(sess, "No such character.")
		return
	}

	ch := &world.Character{
		DBID:  row.ID,
		Name:  row.Name,
		Level: row.Level,
		X:     row.X,
		Y:     row.Y,
		MapID: row.MapID,
	}
	if err := deps.Roster.SpawnCharacter(player, ch); err != nil {
		log.Warn("spawn failed", zap.Error(err))
		SendMessage(sess, "Character already in world.")
		return
	}
	if _, err := player.Tasks.RemoveTask(taskEnterDeadline, false); err != nil {
		log.Warn("stop enter deadline failed", zap.Error(err))
	}

	sess.SetState(packet.StateInWorld)
	sendEnterWorld(sess, ch)
	log.Info("entered world", zap.Int32("object", ch.ObjectID))
}

// HandleLeaveWorld processes C_LEAVE_WORLD: back to character select.
func HandleLeaveWorld(sess *net.Session, _ *packet.Reader, deps *Deps) {
	player := deps.Roster.Player(sess.ID)
	if player == nil {
		sess.Close()
		return
	}
	ch := deps.Roster.DespawnCharacter(player)
	sess.SetState(packet.StateAuthenticated)
	if ch != nil {
		sendLeaveWorld(sess, ch.ObjectID)
		deps.Log.Info("left world", zap.Uint64("session", sess.ID), zap.String("char", ch.Name))
	}
	armEnterDeadline(player, deps)
}
