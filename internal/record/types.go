package record

import "time"

// ID identifies a logical record. It is shared by every physical table in
// the record's hierarchy and by every stage row and version row of the
// record. IDs are positive and stable for the record's lifetime; they are
// never reused because version history is never deleted.
type ID int64

// Fields holds the column values for one physical table, keyed by column
// name. Values are restricted to the storable domain: string, int64, bool,
// or nil (SQL NULL). Floats are rejected at the digest boundary.
type Fields map[string]any

// Snapshot is a record's full field set across its hierarchy, keyed by the
// logical (unsuffixed) table name. A snapshot is what gets written to a
// stage and copied into the _versions tables.
type Snapshot map[string]Fields

// Clone returns a deep copy of the snapshot. Engine internals mutate
// snapshots while preparing writes; callers keep their own copy.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for table, fields := range s {
		f := make(Fields, len(fields))
		for k, v := range fields {
			f[k] = v
		}
		out[table] = f
	}
	return out
}

// VersionMeta describes one entry in a record's version history.
type VersionMeta struct {
	RecordID  ID
	Version   int64
	WrittenAt time.Time
	Author    string // empty when the write carried no author
	Digest    string // content digest of the base-table snapshot row
}

// Record is a materialized read result: one logical record assembled by
// joining its hierarchy tables, plus the concrete class name stored on the
// base table.
type Record struct {
	ID     ID
	Class  string
	Fields Fields // flattened across the hierarchy; column names are unique
}
