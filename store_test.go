package themis

import (
	"path/filepath"
	"testing"
)

func testDescriptors() []Descriptor {
	return []Descriptor{
		{ID: 0, Group: "g", Name: "width", Kind: KindI32, Default: I32Value(256),
			Validation: Validation{Kind: ValidationRange, Min: 1, Max: 4096}},
		{ID: 1, Group: "g", Name: "name", Kind: KindString, Default: StringValue("default")},
		{ID: 2, Group: "g", Name: "const_val", Kind: KindI32, Default: I32Value(1), IsConst: true},
		{ID: 3, Group: "g", Name: "scratch", Kind: KindI32, Default: I32Value(0), Runtime: true},
	}
}

func openTestStore(t *testing.T) *store {
	t.Helper()
	dir := t.TempDir()
	s, err := openStore(filepath.Join(dir, "params.db"), testDescriptors())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreGetReturnsDefaultWhenUnset(t *testing.T) {
	s := openTestStore(t)

	v, err := s.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	n, _ := v.Int32()
	if n != 256 {
		t.Fatalf("Get() = %d, want default 256", n)
	}
}

func TestStoreSetThenGetRoundTrips(t *testing.T) {
	s := openTestStore(t)

	changed, err := s.Set(0, I32Value(1024), false)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !changed {
		t.Fatal("Set() reported no change for a new value")
	}

	v, err := s.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	n, _ := v.Int32()
	if n != 1024 {
		t.Fatalf("Get() = %d, want 1024", n)
	}
}

func TestStoreSetEqualityShortCircuit(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Set(0, I32Value(1024), false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	changed, err := s.Set(0, I32Value(1024), false)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if changed {
		t.Fatal("Set() reported a change for an identical value")
	}
}

func TestStoreSetToDefaultDeletesRowButKeepsChangeLog(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Set(0, I32Value(1024), false); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var rowCount int
	if err := s.db.QueryRow("SELECT count(*) FROM parameters WHERE key = 0").Scan(&rowCount); err != nil {
		t.Fatalf("query row count: %v", err)
	}
	if rowCount != 1 {
		t.Fatalf("expected a row for a non-default value, got %d rows", rowCount)
	}

	if _, err := s.Set(0, I32Value(256), true); err != nil {
		t.Fatalf("Set to default: %v", err)
	}

	if err := s.db.QueryRow("SELECT count(*) FROM parameters WHERE key = 0").Scan(&rowCount); err != nil {
		t.Fatalf("query row count: %v", err)
	}
	if rowCount != 0 {
		t.Fatalf("expected default-valued row to be deleted, got %d rows", rowCount)
	}

	ids, err := s.IterChangedSince(0)
	if err != nil {
		t.Fatalf("IterChangedSince: %v", err)
	}
	found := false
	for _, id := range ids {
		if id == 0 {
			found = true
		}
	}
	if !found {
		t.Fatal("change_log lost the change evidence after default-value deletion")
	}
}

func TestStoreSetRejectsConstParameter(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Set(2, I32Value(2), false); ErrorCode(err) != ErrCodeConstParameter {
		t.Fatalf("expected const-parameter error, got %v", err)
	}
}

func TestStoreSetRejectsOutOfRange(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Set(0, I32Value(5000), false); ErrorCode(err) != ErrCodeOutOfRange {
		t.Fatalf("expected out-of-range error, got %v", err)
	}
}

func TestStoreIterChangedSinceReturnsChangedIDs(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.Set(0, I32Value(1), false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := s.Set(1, StringValue("x"), false); err != nil {
		t.Fatalf("Set: %v", err)
	}

	ids, err := s.IterChangedSince(0)
	if err != nil {
		t.Fatalf("IterChangedSince: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("len(ids) = %d, want 2", len(ids))
	}
}

func TestStoreSaveExcludesRuntimeParameters(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Set(3, I32Value(99), false); err != nil {
		t.Fatalf("Set runtime param: %v", err)
	}

	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "snapshot.db")
	if err := s.Save(snapshotPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored := openTestStore(t)
	if err := restored.Restore(snapshotPath); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	v, err := restored.Get(3)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	n, _ := v.Int32()
	if n != 0 {
		t.Fatalf("runtime parameter leaked into snapshot: got %d, want default 0", n)
	}
}

func TestStoreRestoreRestampsChangeLog(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Set(0, I32Value(512), false); err != nil {
		t.Fatalf("Set: %v", err)
	}
	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "snapshot.db")
	if err := s.Save(snapshotPath); err != nil {
		t.Fatalf("Save: %v", err)
	}

	target := openTestStore(t)
	if err := target.Restore(snapshotPath); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	ids, err := target.IterChangedSince(0)
	if err != nil {
		t.Fatalf("IterChangedSince: %v", err)
	}
	found := false
	for _, id := range ids {
		if id == 0 {
			found = true
		}
	}
	if !found {
		t.Fatal("Restore did not re-stamp change_log for the restored parameter")
	}

	v, err := target.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	n, _ := v.Int32()
	if n != 512 {
		t.Fatalf("Get() after restore = %d, want 512", n)
	}
}

func TestStoreFactoryResetRestoresDefaultsAndLogsAllIDs(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Set(0, I32Value(512), false); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := s.FactoryReset(); err != nil {
		t.Fatalf("FactoryReset: %v", err)
	}

	v, err := s.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	n, _ := v.Int32()
	if n != 256 {
		t.Fatalf("Get() after factory reset = %d, want default 256", n)
	}

	ids, err := s.IterChangedSince(0)
	if err != nil {
		t.Fatalf("IterChangedSince: %v", err)
	}
	if len(ids) != len(testDescriptors()) {
		t.Fatalf("factory reset logged %d IDs, want %d", len(ids), len(testDescriptors()))
	}
}

func TestStoreSchemaVersionMismatchRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.db")

	s, err := openStore(path, testDescriptors())
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	s.Close()

	s2, err := openStore(path, testDescriptors())
	if err != nil {
		t.Fatalf("reopening same-version store should succeed: %v", err)
	}
	if _, err := s2.db.Exec("UPDATE schema_version SET version = ?", storeSchemaVersion+1); err != nil {
		t.Fatalf("restamp schema version: %v", err)
	}
	s2.Close()

	if _, err := openStore(path, testDescriptors()); ErrorCode(err) != ErrCodeSchemaVersion {
		t.Fatalf("expected schema-version error for a mismatched stamp, got %v", err)
	}
}
