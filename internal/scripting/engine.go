package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Hook names looked up as Lua globals.
const (
	hookCharacterAdded = "on_character_added"
)

// Engine wraps a single gopher-lua VM. Single-goroutine access only (game loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads every script in dir and its
// character/ subdirectory. Missing directories are skipped.
func NewEngine(dir string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}
	if dir == "" {
		return e, nil
	}
	for _, d := range []string{dir, filepath.Join(dir, "character")} {
		if err := e.loadDir(d); err != nil {
			vm.Close()
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// LoadString runs a chunk of Lua source in the engine's VM.
func (e *Engine) LoadString(src string) error {
	return e.vm.DoString(src)
}

// HasHook reports whether a hook function is defined.
func (e *Engine) HasHook(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// CharacterInfo is the read-only view of a character passed to Lua.
type CharacterInfo struct {
	ObjectID int32
	Name     string
	Level    int
	X        int
	Y        int
	MapID    int
	Account  string
}

// CharacterAdded runs on_character_added(ch) if the script defines it.
// ch carries the character fields plus ch.send(text), which delivers a
// message through send. If the hook returns a function, CharacterAdded
// returns a cleanup that calls it; otherwise the cleanup is nil.
func (e *Engine) CharacterAdded(info CharacterInfo, send func(string)) (func() error, error) {
	fn, ok := e.vm.GetGlobal(hookCharacterAdded).(*lua.LFunction)
	if !ok {
		return nil, nil
	}

	t := e.vm.NewTable()
	t.RawSetString("id", lua.LNumber(info.ObjectID))
	t.RawSetString("name", lua.LString(info.Name))
	t.RawSetString("level", lua.LNumber(info.Level))
	t.RawSetString("x", lua.LNumber(info.X))
	t.RawSetString("y", lua.LNumber(info.Y))
	t.RawSetString("map", lua.LNumber(info.MapID))
	t.RawSetString("account", lua.LString(info.Account))
	t.RawSetString("send", e.vm.NewFunction(func(L *lua.LState) int {
		if send != nil {
			send(L.CheckString(1))
		}
		return 0
	}))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		return nil, fmt.Errorf("lua %s: %w", hookCharacterAdded, err)
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	cleanup, ok := result.(*lua.LFunction)
	if !ok {
		if result != lua.LNil {
			e.log.Warn("lua hook returned a non-function, ignored",
				zap.String("hook", hookCharacterAdded),
				zap.String("type", result.Type().String()),
			)
		}
		return nil, nil
	}
	return func() error {
		if err := e.vm.CallByParam(lua.P{Fn: cleanup, NRet: 0, Protect: true}); err != nil {
			return fmt.Errorf("lua %s cleanup: %w", hookCharacterAdded, err)
		}
		return nil
	}, nil
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
