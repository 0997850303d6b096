package handler

import (
	"context"
	gonet "net"
	"testing"
	"time"

	"github.com/l1jgo/roster/internal/config"
	"github.com/l1jgo/roster/internal/core/future"
	coresys "github.com/l1jgo/roster/internal/core/system"
	"github.com/l1jgo/roster/internal/net"
	"github.com/l1jgo/roster/internal/net/packet"
	"github.com/l1jgo/roster/internal/persist"
	"github.com/l1jgo/roster/internal/roster"
	"github.com/l1jgo/roster/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAccounts struct {
	rows   map[string]*persist.AccountRow
	online map[string]bool
}

func (f *fakeAccounts) Load(_ context.Context, name string) (*persist.AccountRow, error) {
	return f.rows[name], nil
}

func (f *fakeAccounts) Create(_ context.Context, name, password, ip string) (*persist.AccountRow, error) {
	row := &persist.AccountRow{Name: name, PasswordHash: "plain:" + password, IP: ip}
	f.rows[name] = row
	return row, nil
}

func (f *fakeAccounts) ValidatePassword(hash, raw string) bool { return hash == "plain:"+raw }

func (f *fakeAccounts) SetOnline(_ context.Context, name string, online bool) error {
	f.online[name] = online
	return nil
}

type fakeCharacters struct {
	rows   map[string]*persist.CharacterRow
	nextID int32
}

func (f *fakeCharacters) LoadByName(_ context.Context, name string) (*persist.CharacterRow, error) {
	return f.rows[name], nil
}

func (f *fakeCharacters) Create(_ context.Context, account, name string) (*persist.CharacterRow, error) {
	f.nextID++
	row := &persist.CharacterRow{ID: f.nextID, AccountName: account, Name: name, Level: 1, X: 100, Y: 200}
	f.rows[name] = row
	return row, nil
}

type fixture struct {
	deps     *Deps
	reg      *packet.Registry
	accounts *fakeAccounts
	chars    *fakeCharacters
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Server.MinClientVersion = ">= 1.2.0"
	cfg.Roster.EnterWorldTimeout = time.Hour

	constraint, err := ParseClientConstraint(cfg.Server.MinClientVersion)
	require.NoError(t, err)

	ros := world.NewRoster(nil)
	coord, err := roster.New[*world.Player, *world.Character](ros, roster.WithExecutor(coresys.NewQueue(nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = coord.Close() })

	f := &fixture{
		accounts: &fakeAccounts{rows: map[string]*persist.AccountRow{}, online: map[string]bool{}},
		chars:    &fakeCharacters{rows: map[string]*persist.CharacterRow{}},
	}
	f.deps = &Deps{
		Accounts:      f.accounts,
		Characters:    f.chars,
		Config:        cfg,
		Log:           zap.NewNop(),
		Roster:        ros,
		Coord:         coord,
		Exec:          future.Inline,
		ClientVersion: constraint,
	}
	f.reg = packet.NewRegistry(nil)
	RegisterAll(f.reg, f.deps)
	return f
}

var nextSessionID uint64

func newSession(t *testing.T) *net.Session {
	t.Helper()
	server, client := gonet.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	nextSessionID++
	return net.NewSession(server, nextSessionID, net.SessionOptions{InQueueSize: 8, OutQueueSize: 32}, nil)
}

func (f *fixture) send(t *testing.T, sess *net.Session, op byte, strs ...string) {
	t.Helper()
	w := packet.NewWriter(op)
	for _, s := range strs {
		w.WriteS(s)
	}
	require.NoError(t, f.reg.Dispatch(sess, sess.State(), w.Bytes()))
}

// sent flushes the session and returns the opcodes written since the last call.
func sent(sess *net.Session) []byte {
	sess.FlushOutput()
	var ops []byte
	for {
		select {
		case data := <-sess.OutQueue:
			if data != nil {
				ops = append(ops, data[0])
			}
		default:
			return ops
		}
	}
}

func (f *fixture) login(t *testing.T, sess *net.Session, account string) {
	t.Helper()
	f.send(t, sess, packet.C_VERSION, "1.2.3")
	f.send(t, sess, packet.C_LOGIN, account, "pw")
	require.Equal(t, packet.StateAuthenticated, sess.State())
	sent(sess)
}

func TestVersionGate(t *testing.T) {
	f := newFixture(t)

	ok := newSession(t)
	f.send(t, ok, packet.C_VERSION, "1.3.0")
	assert.Equal(t, packet.StateVersionOK, ok.State())
	assert.Equal(t, []byte{packet.S_VERSION_CHECK}, sent(ok))

	old := newSession(t)
	f.send(t, old, packet.C_VERSION, "1.1.9")
	assert.Equal(t, packet.StateDisconnecting, old.State())

	garbage := newSession(t)
	f.send(t, garbage, packet.C_VERSION, "banana")
	assert.Equal(t, packet.StateDisconnecting, garbage.State())
}

func TestDisconnectPacketQueuedOnReject(t *testing.T) {
	f := newFixture(t)
	sess := newSession(t)
	f.send(t, sess, packet.C_VERSION, "0.9.0")

	var got [][]byte
	for len(sess.OutQueue) > 0 {
		got = append(got, <-sess.OutQueue)
	}
	require.Len(t, got, 2)
	assert.Equal(t, packet.S_DISCONNECT, got[0][0])
	assert.Nil(t, got[1], "close marker follows the packet")
}

func TestLoginAutoCreatesAndTracksPlayer(t *testing.T) {
	f := newFixture(t)
	sess := newSession(t)
	f.login(t, sess, "Alice")

	p := f.deps.Roster.Player(sess.ID)
	require.NotNil(t, p)
	assert.Equal(t, "alice", p.AccountName)
	assert.Equal(t, "alice", sess.AccountName)
	assert.True(t, f.accounts.online["alice"])
	_, armed := p.Tasks.GetTask(taskEnterDeadline)
	assert.True(t, armed)

	// Removing the player takes the account offline.
	f.deps.Roster.RemovePlayer(sess.ID)
	assert.False(t, f.accounts.online["alice"])
	assert.Zero(t, p.Tasks.Len())
}

func TestLoginRejections(t *testing.T) {
	f := newFixture(t)
	f.accounts.rows["bob"] = &persist.AccountRow{Name: "bob", PasswordHash: "plain:secret"}
	f.accounts.rows["eve"] = &persist.AccountRow{Name: "eve", PasswordHash: "plain:pw", Banned: true}

	wrong := newSession(t)
	f.send(t, wrong, packet.C_VERSION, "1.2.0")
	f.send(t, wrong, packet.C_LOGIN, "bob", "guess")
	assert.Equal(t, packet.StateVersionOK, wrong.State())

	banned := newSession(t)
	f.send(t, banned, packet.C_VERSION, "1.2.0")
	f.send(t, banned, packet.C_LOGIN, "eve", "pw")
	assert.Equal(t, packet.StateVersionOK, banned.State())

	first := newSession(t)
	f.login(t, first, "carol")
	second := newSession(t)
	f.send(t, second, packet.C_VERSION, "1.2.0")
	f.send(t, second, packet.C_LOGIN, "carol", "pw")
	assert.Equal(t, packet.StateVersionOK, second.State(), "account in use")

	f.deps.Config.Character.AutoCreateAccounts = false
	none := newSession(t)
	f.send(t, none, packet.C_VERSION, "1.2.0")
	f.send(t, none, packet.C_LOGIN, "dave", "pw")
	assert.Equal(t, packet.StateVersionOK, none.State())
	assert.Equal(t, 1, f.deps.Roster.PlayerCount())
}

func TestEnterAndLeaveWorld(t *testing.T) {
	f := newFixture(t)
	sess := newSession(t)
	f.login(t, sess, "alice")
	p := f.deps.Roster.Player(sess.ID)

	f.send(t, sess, packet.C_ENTER_WORLD, "Knight")
	assert.Equal(t, packet.StateInWorld, sess.State())
	assert.Equal(t, []byte{packet.S_ENTER_WORLD}, sent(sess))
	require.NotNil(t, p.Char)
	assert.Equal(t, "Knight", p.Char.Name)
	assert.Equal(t, "Knight", sess.CharName, "session follows the character")
	_, armed := p.Tasks.GetTask(taskEnterDeadline)
	assert.False(t, armed)

	f.send(t, sess, packet.C_LEAVE_WORLD)
	assert.Equal(t, packet.StateAuthenticated, sess.State())
	assert.Equal(t, []byte{packet.S_LEAVE_WORLD}, sent(sess))
	assert.Nil(t, p.Char)
	assert.Empty(t, sess.CharName)
	_, armed = p.Tasks.GetTask(taskEnterDeadline)
	assert.True(t, armed)
}

func TestEnterWorldOtherAccountsCharacter(t *testing.T) {
	f := newFixture(t)
	f.chars.rows["Mage"] = &persist.CharacterRow{ID: 9, AccountName: "bob", Name: "Mage"}

	sess := newSession(t)
	f.login(t, sess, "alice")
	f.send(t, sess, packet.C_ENTER_WORLD, "Mage")
	assert.Equal(t, packet.StateAuthenticated, sess.State())
	assert.Equal(t, []byte{packet.S_MESSAGE}, sent(sess))
}

func TestEnterDeadlineDisconnects(t *testing.T) {
	f := newFixture(t)
	f.deps.Config.Roster.EnterWorldTimeout = 10 * time.Millisecond

	done := make(chan struct{})
	f.deps.Exec = future.ExecutorFunc(func(fn func()) {
		fn()
		close(done)
	})

	sess := newSession(t)
	f.login(t, sess, "alice")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("deadline never fired")
	}
	assert.Equal(t, packet.StateDisconnecting, sess.State())
}

func TestQuit(t *testing.T) {
	f := newFixture(t)
	sess := newSession(t)
	f.login(t, sess, "alice")
	f.send(t, sess, packet.C_QUIT)
	assert.Equal(t, packet.StateDisconnecting, sess.State())
}
