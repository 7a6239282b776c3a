// store.go: SQLite-backed typed parameter store
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package themis

import (
	"database/sql"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

const storeSchemaVersion = 1

// store is the SQLite-backed home for every parameter value that differs
// from its descriptor's default. Grounded on the teacher's audit SQLite
// backend for pragma/open/migration discipline, and on the original
// implementation's DatabaseManager for the write/read/update semantics
// (database_utils.rs).
type store struct {
	db     *sql.DB
	descs  []Descriptor
	byID   map[ParamID]*Descriptor
	byName map[string]*Descriptor
}

// openStore opens (creating if absent) the SQLite database at path and
// attaches the compiled schema. It refuses to attach to a database
// stamped with a different storage layout version (storeSchemaVersion);
// the version declared in the YAML schema that produced descs is not
// stamped or compared.
func openStore(path string, descs []Descriptor) (*store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf(
		"%s?_journal_mode=WAL&_busy_timeout=10000&_synchronous=NORMAL&_cache_size=1000", path))
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeDbError, "failed to open parameter database").
			WithContext("path", path)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, ErrCodeDbError, "failed to reach parameter database").
			WithContext("path", path)
	}

	s := &store{
		db:     db,
		descs:  descs,
		byID:   make(map[ParamID]*Descriptor, len(descs)),
		byName: make(map[string]*Descriptor, len(descs)),
	}
	for i := range descs {
		s.byID[descs[i].ID] = &descs[i]
		s.byName[descs[i].FullName()] = &descs[i]
	}

	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *store) ensureSchema() error {
	const createTables = `
	CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);
	CREATE TABLE IF NOT EXISTS parameters (
		key INTEGER PRIMARY KEY,
		kind INTEGER NOT NULL,
		value BLOB NOT NULL,
		timestamp INTEGER NOT NULL
	) WITHOUT ROWID;
	CREATE TABLE IF NOT EXISTS change_log (
		id INTEGER PRIMARY KEY,
		timestamp INTEGER NOT NULL
	) WITHOUT ROWID;
	`
	if _, err := s.db.Exec(createTables); err != nil {
		return errors.Wrap(err, ErrCodeDbError, "failed to create parameter schema")
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", storeSchemaVersion)
		if err != nil {
			return errors.Wrap(err, ErrCodeDbError, "failed to stamp schema version")
		}
	case err != nil:
		return errors.Wrap(err, ErrCodeDbError, "failed to read schema version")
	case version != storeSchemaVersion:
		return errors.New(ErrCodeSchemaVersion,
			fmt.Sprintf("database schema version %d does not match compiled schema version %d", version, storeSchemaVersion)).
			WithContext("db_version", fmt.Sprint(version)).
			WithContext("schema_version", fmt.Sprint(storeSchemaVersion))
	}
	return nil
}

// nowTimestamp returns the current time as unix nanoseconds, via
// go-timecache's cached clock rather than a fresh time.Now() per call.
func nowTimestamp() int64 {
	return timecache.CachedTime().UnixNano()
}

// Get reads id's current value: the stored row if one exists, otherwise
// the descriptor default.
func (s *store) Get(id ParamID) (Value, error) {
	desc, ok := s.byID[id]
	if !ok {
		return Value{}, errors.New(ErrCodeNotFound, fmt.Sprintf("unknown parameter id %d", id))
	}

	var kind Kind
	var blob []byte
	err := s.db.QueryRow("SELECT kind, value FROM parameters WHERE key = ?", id).Scan(&kind, &blob)
	switch {
	case err == sql.ErrNoRows:
		return s.resolveDefault(desc)
	case err != nil:
		return Value{}, errors.Wrap(err, ErrCodeDbError, "failed to read parameter").
			WithContext("parameter", desc.FullName())
	}

	v, err := decodeValue(kind, blob)
	if err != nil {
		// A row decode failure falls back to the compiled default rather
		// than surfacing a DB error to every reader: read_or_create in the
		// original implementation does the same on type mismatch.
		return s.resolveDefault(desc)
	}
	return v, nil
}

// resolveDefault returns desc's default value, lazily loading a blob
// default from DefaultPath on first use and caching it onto the
// descriptor so later reads don't re-hit the filesystem.
func (s *store) resolveDefault(desc *Descriptor) (Value, error) {
	if desc.Kind == KindBlob && desc.DefaultPath != "" && len(desc.Default.blob) == 0 {
		data, err := loadBlobDefault(desc.DefaultPath)
		if err != nil {
			return Value{}, errors.Wrap(err, ErrCodeIoError, "failed to load blob default").
				WithContext("parameter", desc.FullName()).
				WithContext("path", desc.DefaultPath)
		}
		desc.Default = BlobValue(data)
	}
	return desc.Default, nil
}

// Set validates and writes id's new value. If force is false and the new
// value equals the current one, Set is a no-op (matches the original
// write()'s equality short-circuit, avoiding a spurious change-log entry
// and multicast notification for an unchanged write).
//
// If the new value equals the descriptor default, the backing row is
// deleted (invariant: parameters holds only non-default values) in the
// same transaction that would otherwise have written it, so the delete
// is never externally observable as a separate state. The change_log
// entry is written regardless, since it is the durable record that a
// change happened -- deleting the parameters row must not erase that.
func (s *store) Set(id ParamID, v Value, force bool) (changed bool, err error) {
	desc, ok := s.byID[id]
	if !ok {
		return false, errors.New(ErrCodeNotFound, fmt.Sprintf("unknown parameter id %d", id))
	}
	if err := desc.Validate(v); err != nil {
		return false, err
	}

	if !force {
		current, err := s.Get(id)
		if err == nil && valuesEqual(current, v) {
			return false, nil
		}
	}

	ts := nowTimestamp()
	encoded, err := encodeValue(v)
	if err != nil {
		return false, errors.Wrap(err, ErrCodeSerializationError, "failed to encode parameter value")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, errors.Wrap(err, ErrCodeDbError, "failed to begin write transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if valuesEqual(v, desc.Default) {
		_, err = tx.Exec("DELETE FROM parameters WHERE key = ?", id)
	} else {
		_, err = tx.Exec(`INSERT INTO parameters (key, kind, value, timestamp) VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, value = excluded.value, timestamp = excluded.timestamp`,
			id, v.Kind(), encoded, ts)
	}
	if err != nil {
		return false, errors.Wrap(err, ErrCodeDbError, "failed to write parameter").
			WithContext("parameter", desc.FullName())
	}

	_, err = tx.Exec(`INSERT INTO change_log (id, timestamp) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET timestamp = excluded.timestamp`, id, ts)
	if err != nil {
		return false, errors.Wrap(err, ErrCodeDbError, "failed to append change log entry")
	}

	if err = tx.Commit(); err != nil {
		return false, errors.Wrap(err, ErrCodeDbError, "failed to commit parameter write")
	}
	return true, nil
}

// IterChangedSince returns every parameter ID whose change_log timestamp
// is strictly after ts, in ascending timestamp order, per spec.md §4.C
// ("iter_changed_since(t) -> rows with timestamp > t"). This is the
// reconciler's read side of a full rescan; the reconciler always passes
// the previous rescan's own high-water-mark timestamp as ts, so a
// boundary write sharing that exact timestamp would only be missed if it
// landed in the same go-timecache tick as the rescan itself -- the
// notifier's multicast path covers that case in practice, and the next
// rescan still sees the row if it is written again later.
func (s *store) IterChangedSince(ts int64) ([]ParamID, error) {
	rows, err := s.db.Query("SELECT id FROM change_log WHERE timestamp > ? ORDER BY timestamp ASC", ts)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeDbError, "failed to query change log")
	}
	defer rows.Close()

	var ids []ParamID
	for rows.Next() {
		var id ParamID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, ErrCodeDbError, "failed to scan change log row")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Save writes a consistent snapshot of the store to dstPath, excluding
// runtime-only parameters (they're process-local and meaningless in a
// restored snapshot on possibly another host), matching
// copy_database_with_filter's runtime exclusion in the original.
func (s *store) Save(dstPath string) error {
	if err := os.Remove(dstPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, ErrCodeIoError, "failed to remove existing snapshot file")
	}

	dst, err := sql.Open("sqlite3", dstPath)
	if err != nil {
		return errors.Wrap(err, ErrCodeDbError, "failed to create snapshot database")
	}
	defer dst.Close()

	if _, err := dst.Exec(`
		CREATE TABLE schema_version (version INTEGER PRIMARY KEY);
		CREATE TABLE parameters (key INTEGER PRIMARY KEY, kind INTEGER NOT NULL, value BLOB NOT NULL, timestamp INTEGER NOT NULL) WITHOUT ROWID;
	`); err != nil {
		return errors.Wrap(err, ErrCodeDbError, "failed to create snapshot schema")
	}
	if _, err := dst.Exec("INSERT INTO schema_version (version) VALUES (?)", storeSchemaVersion); err != nil {
		return errors.Wrap(err, ErrCodeDbError, "failed to stamp snapshot schema version")
	}

	rows, err := s.db.Query("SELECT key, kind, value, timestamp FROM parameters")
	if err != nil {
		return errors.Wrap(err, ErrCodeDbError, "failed to read parameters for snapshot")
	}
	defer rows.Close()

	stmt, err := dst.Prepare("INSERT INTO parameters (key, kind, value, timestamp) VALUES (?, ?, ?, ?)")
	if err != nil {
		return errors.Wrap(err, ErrCodeDbError, "failed to prepare snapshot insert")
	}
	defer stmt.Close()

	for rows.Next() {
		var key ParamID
		var kind Kind
		var value []byte
		var ts int64
		if err := rows.Scan(&key, &kind, &value, &ts); err != nil {
			return errors.Wrap(err, ErrCodeDbError, "failed to scan parameter row for snapshot")
		}
		if desc, ok := s.byID[key]; ok && desc.Runtime {
			continue
		}
		if _, err := stmt.Exec(key, kind, value, ts); err != nil {
			return errors.Wrap(err, ErrCodeDbError, "failed to write snapshot row")
		}
	}
	return rows.Err()
}

// Restore replaces the store's non-Runtime parameters with the contents
// of a snapshot produced by Save (Runtime parameters keep their current
// values, just as Save leaves them out), then re-derives change_log entries so
// every restored parameter is treated as freshly changed (notifying
// callbacks and other processes, matching load_database's semantics in
// the original implementation).
func (s *store) Restore(srcPath string) error {
	src, err := sql.Open("sqlite3", srcPath+"?mode=ro")
	if err != nil {
		return errors.Wrap(err, ErrCodeDbError, "failed to open snapshot database").
			WithContext("path", srcPath)
	}
	defer src.Close()

	rows, err := src.Query("SELECT key, kind, value, timestamp FROM parameters")
	if err != nil {
		return errors.Wrap(err, ErrCodeDbError, "failed to read snapshot parameters")
	}
	defer rows.Close()

	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, ErrCodeDbError, "failed to begin restore transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, desc := range s.descs {
		if desc.Runtime {
			continue
		}
		if _, err = tx.Exec("DELETE FROM parameters WHERE key = ?", desc.ID); err != nil {
			return errors.Wrap(err, ErrCodeDbError, "failed to clear parameters before restore")
		}
	}

	ts := nowTimestamp()
	for rows.Next() {
		var key ParamID
		var kind Kind
		var value []byte
		var rowTS int64
		if err = rows.Scan(&key, &kind, &value, &rowTS); err != nil {
			return errors.Wrap(err, ErrCodeDbError, "failed to scan snapshot row")
		}
		if _, err = tx.Exec("INSERT INTO parameters (key, kind, value, timestamp) VALUES (?, ?, ?, ?)",
			key, kind, value, ts); err != nil {
			return errors.Wrap(err, ErrCodeDbError, "failed to write restored parameter")
		}
		if _, err = tx.Exec(`INSERT INTO change_log (id, timestamp) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET timestamp = excluded.timestamp`, key, ts); err != nil {
			return errors.Wrap(err, ErrCodeDbError, "failed to log restored parameter")
		}
	}
	if err = rows.Err(); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, ErrCodeDbError, "failed to commit restore")
	}
	return nil
}

// FactoryReset drops every stored (non-default) value, restoring every
// parameter to its compiled default, and logs every known parameter ID
// as changed so watchers re-read and re-notify.
func (s *store) FactoryReset() error {
	ts := nowTimestamp()
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, ErrCodeDbError, "failed to begin factory reset transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.Exec("DELETE FROM parameters"); err != nil {
		return errors.Wrap(err, ErrCodeDbError, "failed to clear parameters")
	}
	for _, desc := range s.descs {
		if _, err = tx.Exec(`INSERT INTO change_log (id, timestamp) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET timestamp = excluded.timestamp`, desc.ID, ts); err != nil {
			return errors.Wrap(err, ErrCodeDbError, "failed to log factory reset")
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, ErrCodeDbError, "failed to commit factory reset")
	}
	return nil
}

// Close releases the underlying database handle.
func (s *store) Close() error {
	return s.db.Close()
}

// encodeValue renders v to the byte representation stored in the
// parameters.value column, using each Go type's native fixed-width
// encoding rather than a generic format, mirroring the original
// implementation's per-kind column handling in database_utils.rs.
func encodeValue(v Value) ([]byte, error) {
	switch v.Kind() {
	case KindBool:
		b, _ := v.Bool()
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case KindI32:
		n, _ := v.Int32()
		return putInt64(int64(n)), nil
	case KindU32:
		n, _ := v.Uint32()
		return putInt64(int64(n)), nil
	case KindI64:
		n, _ := v.Int64()
		return putInt64(n), nil
	case KindU64:
		n, _ := v.Uint64()
		return putInt64(int64(n)), nil
	case KindF32:
		n, _ := v.Float32()
		return putFloat64(float64(n)), nil
	case KindF64:
		n, _ := v.Float64()
		return putFloat64(n), nil
	case KindString:
		s, _ := v.Text()
		return []byte(s), nil
	case KindBlob:
		b, _ := v.Bytes()
		return b, nil
	default:
		return nil, errors.New(ErrCodeSerializationError, "cannot encode value of unknown kind")
	}
}

func decodeValue(kind Kind, raw []byte) (Value, error) {
	switch kind {
	case KindBool:
		return BoolValue(len(raw) > 0 && raw[0] != 0), nil
	case KindI32:
		return I32Value(int32(getInt64(raw))), nil
	case KindU32:
		return U32Value(uint32(getInt64(raw))), nil
	case KindI64:
		return I64Value(getInt64(raw)), nil
	case KindU64:
		return U64Value(uint64(getInt64(raw))), nil
	case KindF32:
		return F32Value(float32(getFloat64(raw))), nil
	case KindF64:
		return F64Value(getFloat64(raw)), nil
	case KindString:
		return StringValue(string(raw)), nil
	case KindBlob:
		return BlobValue(raw), nil
	default:
		return Value{}, errors.New(ErrCodeSerializationError, "cannot decode value of unknown kind")
	}
}

func putInt64(n int64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(n >> (8 * i))
	}
	return b
}

func getInt64(b []byte) int64 {
	var n int64
	for i := 0; i < 8 && i < len(b); i++ {
		n |= int64(b[i]) << (8 * i)
	}
	return n
}

func putFloat64(f float64) []byte {
	return putInt64(int64(math.Float64bits(f)))
}

func getFloat64(b []byte) float64 {
	return math.Float64frombits(uint64(getInt64(b)))
}

// loadBlobDefault reads a blob parameter's default value lazily from a
// file path, per the schema compiler's ValPath default mechanism: a blob
// default is a path to read at first access rather than embedded bytes.
func loadBlobDefault(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeIoError, "failed to open blob default file").
			WithContext("path", path)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeIoError, "failed to read blob default file").
			WithContext("path", path)
	}
	return data, nil
}
