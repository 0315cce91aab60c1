// Package snapshotstore — store.go
//
// Optional BoltDB-backed snapshot/restore collaborator for the control
// plane's in-memory engines: serializes each engine's value-typed summary
// to disk so state survives a restart.
//
// Schema (BoltDB bucket layout):
//
//	/tenants
//	    key:   tenant id
//	    value: JSON-encoded tenant.Tenant
//
//	/audit_tail
//	    key:   sequence number, zero-padded to 20 digits [sortable]
//	    value: JSON-encoded audit.Event
//
//	/connector_metrics
//	    key:   connector name
//	    value: JSON-encoded connector.Metrics
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// Consistency model:
//   - Single-process, single-writer (BoltDB does not support concurrent writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//
// This store is never called from inside an engine method: engines stay
// synchronous and in-memory, and a snapshot is always an external,
// point-in-time read of each engine's already-exported value types.
package snapshotstore

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/campaignexpress/controlplane/internal/audit"
	"github.com/campaignexpress/controlplane/internal/connector"
	"github.com/campaignexpress/controlplane/internal/tenant"
)

const (
	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	bucketTenants          = "tenants"
	bucketAuditTail        = "audit_tail"
	bucketConnectorMetrics = "connector_metrics"
	bucketMeta             = "meta"
)

// DB wraps a BoltDB instance with typed snapshot/restore accessors for the
// control plane's engines.
type DB struct {
	db *bolt.DB
}

// Open opens (or creates) the BoltDB database at path, initializing all
// required buckets and verifying the schema version.
func Open(path string) (*DB, error) {
	bdb, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketTenants, bucketAuditTail, bucketConnectorMetrics, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}

		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("database initialisation failed: %w", err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return d, nil
}

func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf("schema version mismatch: database has %q, module requires %q", string(v), SchemaVersion)
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (d *DB) Close() error {
	return d.db.Close()
}

// ─── Tenant snapshot ──────────────────────────────────────────────────────

// SnapshotTenants replaces the tenants bucket's contents with tenants, one
// key per tenant id, in a single ACID write transaction.
func (d *DB) SnapshotTenants(tenants []tenant.Tenant) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketTenants))
		if err := clearBucket(b); err != nil {
			return err
		}
		for _, t := range tenants {
			data, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("SnapshotTenants marshal %q: %w", t.ID, err)
			}
			if err := b.Put([]byte(t.ID), data); err != nil {
				return fmt.Errorf("SnapshotTenants put %q: %w", t.ID, err)
			}
		}
		return nil
	})
}

// RestoreTenants returns every tenant currently stored in the tenants
// bucket.
func (d *DB) RestoreTenants() ([]tenant.Tenant, error) {
	var out []tenant.Tenant
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketTenants))
		return b.ForEach(func(_, v []byte) error {
			var t tenant.Tenant
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			out = append(out, t)
			return nil
		})
	})
	return out, err
}

// ─── Audit tail snapshot ──────────────────────────────────────────────────

// auditKey builds a sortable key from a sequence number so the tail can be
// read back in chronological order.
func auditKey(sequence uint64) []byte {
	return []byte(fmt.Sprintf("%020d", sequence))
}

// SnapshotAuditTail replaces the audit_tail bucket's contents with events,
// keyed by sequence number.
func (d *DB) SnapshotAuditTail(events []audit.Event) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketAuditTail))
		if err := clearBucket(b); err != nil {
			return err
		}
		for _, e := range events {
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("SnapshotAuditTail marshal seq %d: %w", e.Sequence, err)
			}
			if err := b.Put(auditKey(e.Sequence), data); err != nil {
				return fmt.Errorf("SnapshotAuditTail put seq %d: %w", e.Sequence, err)
			}
		}
		return nil
	})
}

// RestoreAuditTail returns the stored audit tail in ascending sequence
// order (guaranteed by the bucket's sortable keys).
func (d *DB) RestoreAuditTail() ([]audit.Event, error) {
	var out []audit.Event
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketAuditTail))
		return b.ForEach(func(_, v []byte) error {
			var e audit.Event
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// ─── Connector metrics snapshot ───────────────────────────────────────────

// SnapshotConnectorMetrics replaces the connector_metrics bucket's contents
// with metrics, keyed by connector name.
func (d *DB) SnapshotConnectorMetrics(metrics map[string]connector.Metrics) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketConnectorMetrics))
		if err := clearBucket(b); err != nil {
			return err
		}
		for name, m := range metrics {
			data, err := json.Marshal(m)
			if err != nil {
				return fmt.Errorf("SnapshotConnectorMetrics marshal %q: %w", name, err)
			}
			if err := b.Put([]byte(name), data); err != nil {
				return fmt.Errorf("SnapshotConnectorMetrics put %q: %w", name, err)
			}
		}
		return nil
	})
}

// RestoreConnectorMetrics returns every connector metrics snapshot
// currently stored, keyed by connector name.
func (d *DB) RestoreConnectorMetrics() (map[string]connector.Metrics, error) {
	out := make(map[string]connector.Metrics)
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketConnectorMetrics))
		return b.ForEach(func(k, v []byte) error {
			var m connector.Metrics
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			out[string(k)] = m
			return nil
		})
	})
	return out, err
}

// clearBucket deletes every key currently in b. Used to make each
// Snapshot* call a full replace rather than an accumulating merge.
func clearBucket(b *bolt.Bucket) error {
	c := b.Cursor()
	var keys [][]byte
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		keyCopy := make([]byte, len(k))
		copy(keyCopy, k)
		keys = append(keys, keyCopy)
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return fmt.Errorf("clearBucket delete: %w", err)
		}
	}
	return nil
}
