package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/l1jgo/cmdbus/internal/core/event"
	"github.com/tidwall/gjson"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM whose global functions serve as
// command bodies. Single-goroutine access only (game loop). Scripts may call
// notify.send, which re-enters the bus synchronously.
type Engine struct {
	vm  *lua.LState
	bus *event.Bus
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads every .lua file in scriptsDir,
// then in each subdirectory, in name order. A missing directory is not an
// error.
func NewEngine(scriptsDir string, bus *event.Bus, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState()
	e := &Engine{vm: vm, bus: bus, log: log}

	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	vm.SetGlobal("notify", vm.SetFuncs(vm.NewTable(), map[string]lua.LGFunction{
		"send": e.luaSend,
		"log":  e.luaLog,
	}))

	if err := e.loadTree(scriptsDir); err != nil {
		vm.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) Close() {
	e.vm.Close()
}

func (e *Engine) loadTree(root string) error {
	if err := e.loadDir(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read scripts dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := e.loadDir(filepath.Join(root, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// Has reports whether fn is a global Lua function.
func (e *Engine) Has(fn string) bool {
	_, ok := e.vm.GetGlobal(fn).(*lua.LFunction)
	return ok
}

// Call invokes the global function fn(tag, payload).
func (e *Engine) Call(fn string, n event.Notification) error {
	f, ok := e.vm.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return fmt.Errorf("lua function %s not found", fn)
	}
	return e.vm.CallByParam(lua.P{
		Fn:      f,
		NRet:    0,
		Protect: true,
	}, lua.LString(n.Tag), e.toLua(n.Payload))
}

// Command returns a command body that calls fn. Script errors are logged,
// never propagated into the dispatch chain.
func (e *Engine) Command(fn string) func(event.Notification) {
	return func(n event.Notification) {
		if err := e.Call(fn, n); err != nil {
			e.log.Error("Lua 命令執行失敗",
				zap.String("function", fn),
				zap.String("tag", n.Tag),
				zap.Error(err),
			)
		}
	}
}

// notify.send(tag [, payload])
func (e *Engine) luaSend(L *lua.LState) int {
	tag := L.CheckString(1)
	var payload any
	if L.GetTop() >= 2 {
		payload = fromLua(L.Get(2))
	}
	e.bus.Send(tag, payload)
	return 0
}

// notify.log(msg)
func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info("lua", zap.String("msg", L.CheckString(1)))
	return 0
}

func (e *Engine) toLua(v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return x
	case string:
		return lua.LString(x)
	case bool:
		return lua.LBool(x)
	case int:
		return lua.LNumber(x)
	case int32:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case uint64:
		return lua.LNumber(x)
	case float32:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case gjson.Result:
		return e.jsonToLua(x)
	case []any:
		t := e.vm.NewTable()
		for _, item := range x {
			t.Append(e.toLua(item))
		}
		return t
	case map[string]any:
		t := e.vm.NewTable()
		for k, item := range x {
			t.RawSetString(k, e.toLua(item))
		}
		return t
	case fmt.Stringer:
		return lua.LString(x.String())
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

func (e *Engine) jsonToLua(r gjson.Result) lua.LValue {
	switch r.Type {
	case gjson.Null:
		return lua.LNil
	case gjson.False:
		return lua.LFalse
	case gjson.True:
		return lua.LTrue
	case gjson.Number:
		return lua.LNumber(r.Num)
	case gjson.String:
		return lua.LString(r.Str)
	}
	t := e.vm.NewTable()
	if r.IsArray() {
		r.ForEach(func(_, v gjson.Result) bool {
			t.Append(e.jsonToLua(v))
			return true
		})
		return t
	}
	r.ForEach(func(k, v gjson.Result) bool {
		t.RawSetString(k.String(), e.jsonToLua(v))
		return true
	})
	return t
}

// fromLua converts a Lua value into plain Go values: tables with a sequence
// part become []any, other tables map[string]any.
func fromLua(v lua.LValue) any {
	switch x := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		return float64(x)
	case lua.LString:
		return string(x)
	case *lua.LTable:
		if n := x.MaxN(); n > 0 {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, fromLua(x.RawGetInt(i)))
			}
			return out
		}
		out := make(map[string]any)
		x.ForEach(func(k, val lua.LValue) {
			out[k.String()] = fromLua(val)
		})
		return out
	default:
		return v.String()
	}
}
