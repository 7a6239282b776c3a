// Command paramctl is the operator-facing CLI for a running paramd: get,
// set, list, watch, save, restore, and factory-reset against its
// JSON-RPC/REST control surface.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package main

import (
	"fmt"
	"os"
)

// serverAddr resolves paramd's control surface base URL: PARAMCTL_SERVER
// if set, otherwise http://localhost:8700. paramd serves no control
// surface unless started with --rpc-bind, so the default only reaches a
// paramd started with --rpc-bind :8700.
func serverAddr() string {
	if addr := os.Getenv("PARAMCTL_SERVER"); addr != "" {
		return addr
	}
	return "http://localhost:8700"
}

func main() {
	manager := NewManager(serverAddr())
	if err := manager.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "paramctl: %v\n", err)
		os.Exit(1)
	}
}
