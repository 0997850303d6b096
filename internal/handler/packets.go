package handler

import (
	"github.com/l1jgo/roster/internal/net"
	"github.com/l1jgo/roster/internal/net/packet"
	"github.com/l1jgo/roster/internal/world"
)

// Disconnect reasons carried by S_DISCONNECT.
const (
	DisconnectClientVersion uint16 = 1
	DisconnectIdle          uint16 = 2
	DisconnectShutdown      uint16 = 3
)

// BuildMessage builds S_MESSAGE: [S text].
func BuildMessage(text string) []byte {
	w := packet.NewWriter(packet.S_MESSAGE)
	w.WriteS(text)
	return w.Bytes()
}

// BuildDisconnect builds S_DISCONNECT: [H reason].
func BuildDisconnect(reason uint16) []byte {
	w := packet.NewWriter(packet.S_DISCONNECT)
	w.WriteH(reason)
	return w.Bytes()
}

// SendMessage delivers a system message to one client.
func SendMessage(sess *net.Session, text string) {
	sess.Send(BuildMessage(text))
}

// SendDisconnect tells the client why it is being dropped. Follow it with
// sess.Disconnect so the packet is written before the socket closes.
func SendDisconnect(sess *net.Session, reason uint16) {
	sess.Send(BuildDisconnect(reason))
}

// sendLoginResult sends S_LOGIN_RESULT: [C code].
func sendLoginResult(sess *net.Session, code byte) {
	w := packet.NewWriter(packet.S_LOGIN_RESULT)
	w.WriteC(code)
	sess.Send(w.Bytes())
}

// sendEnterWorld sends S_ENTER_WORLD: [D object][S name][H level][D x][D y][H map].
func sendEnterWorld(sess *net.Session, ch *world.Character) {
	w := packet.NewWriter(packet.S_ENTER_WORLD)
	w.WriteD(ch.ObjectID)
	w.WriteS(ch.Name)
	w.WriteH(uint16(ch.Level))
	w.WriteD(ch.X)
	w.WriteD(ch.Y)
	w.WriteH(uint16(ch.MapID))
	sess.Send(w.Bytes())
}

// sendLeaveWorld sends S_LEAVE_WORLD: [D object].
func sendLeaveWorld(sess *net.Session, objectID int32) {
	w := packet.NewWriter(packet.S_LEAVE_WORLD)
	w.WriteD(objectID)
	sess.Send(w.Bytes())
}
