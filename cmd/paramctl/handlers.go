package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/agilira/orpheus/pkg/orpheus"
)

// handleGet implements "paramctl get <name>".
func (m *Manager) handleGet(ctx *orpheus.Context) error {
	name := ctx.GetArg(0)
	if name == "" {
		return fmt.Errorf("get requires a parameter name")
	}

	v, err := m.client.Get(name)
	if err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", name, string(v))
	return nil
}

// handleSet implements "paramctl set <name> <value>". value is parsed as
// JSON if possible (so numbers/bools/quoted strings work naturally),
// otherwise sent as a JSON string literal.
func (m *Manager) handleSet(ctx *orpheus.Context) error {
	name := ctx.GetArg(0)
	raw := ctx.GetArg(1)
	if name == "" || raw == "" {
		return fmt.Errorf("set requires a parameter name and a value")
	}

	var probe json.RawMessage
	var value json.RawMessage
	if json.Unmarshal([]byte(raw), &probe) == nil {
		value = probe
	} else {
		encoded, _ := json.Marshal(raw)
		value = encoded
	}

	if err := m.client.Set(name, value); err != nil {
		return err
	}
	fmt.Printf("%s set\n", name)
	return nil
}

// handleList implements "paramctl list [--group=]": one line per
// parameter /api/info reports (Internal parameters are not reported),
// then the total count.
func (m *Manager) handleList(ctx *orpheus.Context) error {
	info, err := m.client.Info()
	if err != nil {
		return err
	}
	group := ctx.GetFlagString("group")
	params, _ := info["parameters"].([]interface{})
	for _, p := range params {
		entry, _ := p.(map[string]interface{})
		if group != "" && entry["group"] != group {
			continue
		}
		fmt.Printf("%v\n", entry["name"])
	}
	fmt.Printf("%d parameters known to paramd\n", toInt(info["parameter_count"]))
	return nil
}

// handleWatch implements "paramctl watch <name>", streaming notify
// pushes until interrupted with Ctrl-C.
func (m *Manager) handleWatch(ctx *orpheus.Context) error {
	name := ctx.GetArg(0)
	if name == "" {
		return fmt.Errorf("watch requires a parameter name")
	}

	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		close(done)
	}()

	fmt.Printf("watching %s, press Ctrl-C to stop\n", name)
	return m.client.Watch(name, func(v json.RawMessage) {
		fmt.Printf("%s = %s\n", name, string(v))
	}, done)
}

// handleSave implements "paramctl save <path>".
func (m *Manager) handleSave(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	if path == "" {
		return fmt.Errorf("save requires a destination path")
	}
	if _, err := m.client.call("save", map[string]string{"path": path}); err != nil {
		return err
	}
	fmt.Printf("saved snapshot to %s\n", path)
	return nil
}

// handleRestore implements "paramctl restore <path>".
func (m *Manager) handleRestore(ctx *orpheus.Context) error {
	path := ctx.GetArg(0)
	if path == "" {
		return fmt.Errorf("restore requires a source path")
	}
	if _, err := m.client.call("restore", map[string]string{"path": path}); err != nil {
		return err
	}
	fmt.Printf("restored from %s\n", path)
	return nil
}

// handleFactoryReset implements "paramctl factory-reset".
func (m *Manager) handleFactoryReset(ctx *orpheus.Context) error {
	if _, err := m.client.call("factory_reset", map[string]string{}); err != nil {
		return err
	}
	fmt.Println("every parameter reset to its compiled default")
	return nil
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
