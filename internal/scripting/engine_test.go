package scripting

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/l1jgo/cmdbus/internal/core/event"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testScript = `
function on_login(tag, payload)
  notify.send("audit", { tag = tag, user = payload.user, first = payload.roles[1] })
end

function on_echo(tag, payload)
  notify.send("echo", payload)
end

function on_count(tag, payload)
  notify.send("count", { 1, 2, 3 })
end

function on_fail(tag, payload)
  error("boom")
end
`

func newTestEngine(t *testing.T, files map[string]string) (*Engine, *event.Bus, *observer.ObservedLogs) {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	core, logs := observer.New(zapcore.DebugLevel)
	bus := event.NewBus()
	e, err := NewEngine(dir, bus, zap.New(core))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(e.Close)
	return e, bus, logs
}

func TestEngine_JSONPayloadAndReentrantSend(t *testing.T) {
	e, bus, _ := newTestEngine(t, map[string]string{"core/commands.lua": testScript})
	var got map[string]any
	event.Add(bus, "audit", func(p map[string]any) { got = p }, nil)

	payload := gjson.Parse(`{"user":"ann","roles":["gm","player"]}`)
	e.Command("on_login")(event.Notification{Tag: "login", Payload: payload})

	want := map[string]any{"tag": "login", "user": "ann", "first": "gm"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("audit payload = %v, want %v", got, want)
	}
}

func TestEngine_ScalarPayloads(t *testing.T) {
	e, bus, _ := newTestEngine(t, map[string]string{"a.lua": testScript})
	var got []any
	event.Add(bus, "echo", func(p any) { got = append(got, p) }, nil)

	for _, p := range []any{"text", 7, true, nil, map[string]any{"k": "v"}} {
		e.Command("on_echo")(event.Notification{Tag: "t", Payload: p})
	}

	want := []any{"text", float64(7), true, nil, map[string]any{"k": "v"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("echoed = %#v, want %#v", got, want)
	}
}

func TestEngine_SequenceTable(t *testing.T) {
	e, bus, _ := newTestEngine(t, map[string]string{"a.lua": testScript})
	var got []any
	event.Add(bus, "count", func(p []any) { got = p }, nil)

	e.Command("on_count")(event.Notification{Tag: "t"})

	if want := []any{float64(1), float64(2), float64(3)}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestEngine_ErrorsAreLogged(t *testing.T) {
	e, _, logs := newTestEngine(t, map[string]string{"a.lua": testScript})

	e.Command("on_fail")(event.Notification{Tag: "x"})
	e.Command("missing")(event.Notification{Tag: "y"})

	errs := logs.FilterLevelExact(zapcore.ErrorLevel)
	if errs.Len() != 2 {
		t.Fatalf("error logs = %d, want 2", errs.Len())
	}
	if errs.FilterField(zap.String("function", "missing")).Len() != 1 {
		t.Error("missing function should be reported by name")
	}
	if err := e.Call("missing", event.Notification{}); err == nil {
		t.Error("Call should return an error for a missing function")
	}
}

func TestEngine_HasAndLoadOrder(t *testing.T) {
	e, _, _ := newTestEngine(t, map[string]string{
		"a.lua":       "value = 'root'\nfunction root_fn() end",
		"sub/b.lua":   "value = value .. '+sub'",
		"notes.txt":   "ignored",
		"sub/c.other": "also ignored",
	})

	if !e.Has("root_fn") || e.Has("nope") {
		t.Error("Has should report global functions only")
	}
	if got := e.vm.GetGlobal("value").String(); got != "root+sub" {
		t.Errorf("load order produced %q, want root+sub", got)
	}
}

func TestNewEngine_BadScript(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.lua"), []byte("function ("), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewEngine(dir, event.NewBus(), zap.NewNop()); err == nil {
		t.Error("expected a load error")
	}
}

func TestNewEngine_MissingDir(t *testing.T) {
	e, err := NewEngine(filepath.Join(t.TempDir(), "none"), event.NewBus(), zap.NewNop())
	if err != nil {
		t.Fatalf("missing scripts dir should not fail: %v", err)
	}
	e.Close()
}
