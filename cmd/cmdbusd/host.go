package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/l1jgo/cmdbus/internal/command"
	"github.com/l1jgo/cmdbus/internal/core/event"
	"github.com/l1jgo/cmdbus/internal/data"
	"github.com/l1jgo/cmdbus/internal/persist"
	"github.com/l1jgo/cmdbus/internal/scene"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Built-in tags for switching sets at runtime. The payload is the set name,
// either as a JSON string or as {"name": "..."}.
const (
	tagSetActivate   = "cmdbus.set.activate"
	tagSetDeactivate = "cmdbus.set.deactivate"
	tagStatus        = "cmdbus.status"
)

// commandBody resolves a script function to a command body.
type commandBody interface {
	Has(fn string) bool
	Command(fn string) func(event.Notification)
}

// host wires the manifest into the scene: global commands under the
// registry node, one node per set, one child node per command.
type host struct {
	scene    *scene.Scene
	registry *command.Registry
	regNode  *scene.Node
	scripts  commandBody
	sets     map[string]*command.Set
	journal  *persist.Journal // nil when the database is disabled
	started  time.Time
	now      func() time.Time
	log      *zap.Logger
}

func newHost(sc *scene.Scene, scripts commandBody, started time.Time, log *zap.Logger) *host {
	return &host{
		scene:   sc,
		regNode: sc.Root().Child("registry"),
		scripts: scripts,
		sets:    make(map[string]*command.Set),
		started: started,
		now:     time.Now,
		log:     log,
	}
}

// attachCommands gives each entry its own child of parent so that
// destroy_on_unbind tears down only that command.
func (h *host) attachCommands(parent *scene.Node, entries []data.CommandEntry) {
	for i, e := range entries {
		if !h.scripts.Has(e.Script) {
			h.log.Warn("命令腳本函式不存在", zap.String("tag", e.Tag), zap.String("script", e.Script))
		}
		name := e.Tag
		if name == "" {
			name = fmt.Sprintf("command-%d", i)
		}
		node := parent.Child(name)
		cmd := command.NewConfigurable(e.Tag, h.scripts.Command(e.Script), node)
		if !e.DestroyOnUnbind {
			node.Attach(cmd)
			continue
		}
		m := command.Manage(cmd, node)
		m.DestroyOnUnbind = true
		tag := e.Tag
		m.OnUnregistered(func() {
			h.log.Debug("命令已解除並銷毀", zap.String("tag", tag))
		})
		node.Attach(m)
	}
}

// attachBuiltins adds the runtime set switches and the status command.
func (h *host) attachBuiltins() {
	node := h.regNode.Child("builtin")
	node.Attach(command.NewConfigurable(tagSetActivate, func(n event.Notification) {
		h.switchSet(setName(n.Payload), true)
	}, node))
	node.Attach(command.NewConfigurable(tagSetDeactivate, func(n event.Notification) {
		h.switchSet(setName(n.Payload), false)
	}, node))
	node.Attach(command.NewConfigurable(tagStatus, func(event.Notification) {
		h.logStatus()
	}, node))
}

// buildRegistry creates the dispatcher. Init is left to the caller so it
// runs after the registry has been installed globally.
func (h *host) buildRegistry(bus *event.Bus, m *data.CommandManifest, opts ...command.Option) *command.Registry {
	h.attachCommands(h.regNode, m.Global)
	h.attachBuiltins()
	opts = append([]command.Option{command.WithDiscoverer(h.regNode)}, opts...)
	h.registry = command.NewRegistry(bus, h.log, opts...)
	return h.registry
}

// buildSets creates one Set per manifest entry, scoped to its own node.
func (h *host) buildSets(m *data.CommandManifest) {
	for _, e := range m.Sets {
		node := h.scene.Root().Child("set:" + e.Name)
		h.attachCommands(node, e.Commands)
		h.sets[e.Name] = command.NewSet(e.Name,
			command.WithRegistry(h.registry),
			command.WithSetDiscoverer(node),
			command.WithSpawner(node),
			command.WithSendOnActivate(e.SendOnActivate),
			command.WithSetLogger(h.log),
		)
	}
}

// activateOnStart activates the sets marked activate_on_start, in manifest
// order. The others wait for cmdbus.set.activate.
func (h *host) activateOnStart(m *data.CommandManifest) int {
	n := 0
	for _, e := range m.Sets {
		if e.ActivateOnStart {
			h.sets[e.Name].Activate()
			n++
		}
	}
	return n
}

func (h *host) switchSet(name string, on bool) {
	s, ok := h.sets[name]
	if !ok {
		h.log.Warn("未知的命令組", zap.String("set", name))
		return
	}
	if on {
		s.Activate()
	} else {
		s.Deactivate()
	}
	h.log.Info("命令組狀態變更", zap.String("set", name), zap.Bool("active", s.Registered()))
}

// deactivateAll releases every set, in name order.
func (h *host) deactivateAll() {
	names := make([]string, 0, len(h.sets))
	for name := range h.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.sets[name].Deactivate()
	}
}

func (h *host) logStatus() {
	active := 0
	for _, s := range h.sets {
		if s.Registered() {
			active++
		}
	}
	fields := []zap.Field{
		zap.Strings("tags", h.registry.Tags()),
		zap.Int("sets", len(h.sets)),
		zap.Int("active_sets", active),
		zap.Int("scene_nodes", h.scene.Len()),
		zap.Duration("uptime", h.now().Sub(h.started)),
	}
	if h.journal != nil {
		fields = append(fields,
			zap.Int("journal_buffered", h.journal.Len()),
			zap.Int("journal_dropped", h.journal.Dropped()),
		)
	}
	h.log.Info("命令控制器狀態", fields...)
}

func setName(p any) string {
	switch v := p.(type) {
	case string:
		return v
	case gjson.Result:
		if v.IsObject() {
			return v.Get("name").String()
		}
		return v.String()
	case map[string]any:
		s, _ := v["name"].(string)
		return s
	}
	return ""
}
