package themis

import (
	"path/filepath"
	"testing"
	"time"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		DatabasePath: filepath.Join(dir, "params.db"),
		Descriptors:  testDescriptors(),
		PollInterval: time.Hour,
		Audit:        AuditConfig{Enabled: false},
	}
}

func TestOpenCloseRoundTrip(t *testing.T) {
	inst, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := inst.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestInstanceGetSet(t *testing.T) {
	inst, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer inst.Close()

	if err := inst.Set(0, I32Value(777)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := inst.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	n, _ := v.Int32()
	if n != 777 {
		t.Fatalf("Get() = %d, want 777", n)
	}
}

func TestInstanceWatchFiresOnLocalSet(t *testing.T) {
	inst, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer inst.Close()

	received := make(chan int32, 1)
	inst.Watch(0, func(v Value) {
		n, _ := v.Int32()
		received <- n
	})

	if err := inst.Set(0, I32Value(55)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case n := <-received:
		if n != 55 {
			t.Fatalf("watch callback received %d, want 55", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch callback never fired after Set")
	}
}

func TestInstanceFactoryResetNotifiesWatchers(t *testing.T) {
	inst, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer inst.Close()

	if err := inst.Set(0, I32Value(900)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	received := make(chan struct{}, 1)
	inst.Watch(0, func(Value) {
		select {
		case received <- struct{}{}:
		default:
		}
	})

	if err := inst.FactoryReset(); err != nil {
		t.Fatalf("FactoryReset: %v", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("watch callback never fired after FactoryReset")
	}

	v, err := inst.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	n, _ := v.Int32()
	if n != 256 {
		t.Fatalf("Get() after factory reset = %d, want default 256", n)
	}
}

func TestInstanceSaveRestore(t *testing.T) {
	inst, err := Open(testConfig(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer inst.Close()

	if err := inst.Set(0, I32Value(321)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "snap.db")
	if err := inst.Save(snapshotPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := inst.Set(0, I32Value(1)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := inst.Restore(snapshotPath); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	v, err := inst.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	n, _ := v.Int32()
	if n != 321 {
		t.Fatalf("Get() after restore = %d, want 321", n)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Descriptors = nil
	if _, err := Open(cfg); ErrorCode(err) != ErrCodeInvalidConfig {
		t.Fatalf("expected invalid-config error for empty descriptor set, got %v", err)
	}
}
