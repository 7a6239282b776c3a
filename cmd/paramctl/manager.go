// Package main implements paramctl, the git-style command-line client for
// a running themis Instance's control surface.
//
// Built on Orpheus, following the subcommand-group structure of
// _examples/agilira-argus/cmd/cli/manager.go: a Manager wraps one
// *orpheus.App, setup<Group>Commands methods register subcommands, and
// each handler is a small method taking *orpheus.Context.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package main

import (
	"github.com/agilira/orpheus/pkg/orpheus"
)

// Manager owns the CLI's command tree and the JSON-RPC client used to
// reach a running paramd.
type Manager struct {
	app    *orpheus.App
	client *rpcClient
}

// NewManager builds the paramctl command tree. serverAddr is the
// paramd control surface's base URL (e.g. "http://localhost:8700").
func NewManager(serverAddr string) *Manager {
	app := orpheus.New("paramctl").
		SetDescription("Control a running themis parameter daemon").
		SetVersion("1.0.0")

	m := &Manager{
		app:    app,
		client: newRPCClient(serverAddr),
	}

	m.setupParameterCommands()
	m.setupSnapshotCommands()

	return m
}

// Run executes the CLI with args (normally os.Args[1:]).
func (m *Manager) Run(args []string) error {
	return m.app.Run(args)
}

// setupParameterCommands registers get/set/list/watch -- the day-to-day
// parameter inspection and mutation commands.
func (m *Manager) setupParameterCommands() {
	getCmd := orpheus.NewCommand("get", "Read a parameter's current value").
		SetHandler(m.handleGet)
	m.app.AddCommand(getCmd)

	setCmd := orpheus.NewCommand("set", "Write a parameter's value").
		SetHandler(m.handleSet)
	m.app.AddCommand(setCmd)

	listCmd := orpheus.NewCommand("list", "List every known parameter").
		AddFlag("group", "g", "", "Restrict to one group").
		SetHandler(m.handleList)
	m.app.AddCommand(listCmd)

	watchCmd := orpheus.NewCommand("watch", "Stream change notifications for a parameter").
		SetHandler(m.handleWatch)
	m.app.AddCommand(watchCmd)
}

// setupSnapshotCommands registers save/restore/factory-reset -- the
// whole-store maintenance commands.
func (m *Manager) setupSnapshotCommands() {
	saveCmd := orpheus.NewCommand("save", "Snapshot all parameters to a file").
		SetHandler(m.handleSave)
	m.app.AddCommand(saveCmd)

	restoreCmd := orpheus.NewCommand("restore", "Restore parameters from a snapshot file").
		SetHandler(m.handleRestore)
	m.app.AddCommand(restoreCmd)

	resetCmd := orpheus.NewCommand("factory-reset", "Reset every parameter to its compiled default").
		SetHandler(m.handleFactoryReset)
	m.app.AddCommand(resetCmd)
}
