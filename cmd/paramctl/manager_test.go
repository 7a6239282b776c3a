package main

import "testing"

func TestNewManagerBuildsCommandTree(t *testing.T) {
	m := NewManager("http://localhost:8700")
	if m == nil {
		t.Fatal("NewManager returned nil")
	}
	if m.app == nil {
		t.Fatal("Manager.app not initialized")
	}
	if m.client == nil {
		t.Fatal("Manager.client not initialized")
	}
}

func TestServerAddrDefaultsWhenEnvUnset(t *testing.T) {
	t.Setenv("PARAMCTL_SERVER", "")
	if got := serverAddr(); got != "http://localhost:8700" {
		t.Fatalf("serverAddr() = %q, want default", got)
	}
}

func TestServerAddrHonorsEnv(t *testing.T) {
	t.Setenv("PARAMCTL_SERVER", "http://paramd.local:9000")
	if got := serverAddr(); got != "http://paramd.local:9000" {
		t.Fatalf("serverAddr() = %q, want env override", got)
	}
}
