// Package versioned implements the staged content versioning engine.
//
// A logical record lives simultaneously in multiple named stages (the
// first configured stage is the primal one, stored in the unsuffixed
// tables) and accumulates an immutable version history in the _versions
// tables. The engine provides:
//
//   - WriteVersion: upsert a record's field set into one stage and append
//     a consistent snapshot to the version history, allocating the next
//     version number for the record. Every stage write allocates a
//     version; version numbers per record are gap-free and duplicate-free
//     even under concurrent writers.
//   - Publish: copy a record's current field set from one stage to
//     another atomically across the whole table hierarchy. Publishing
//     allocates no version; it is a stage copy of already-versioned data.
//   - DeleteFromStage: remove a record from one stage's tables. Version
//     history is never deleted.
//   - ReadForStage / ReadForVersion / Read: stage- and version-aware
//     reads driven by the stagesql rewriter. Read derives its target from
//     the reading mode carried in the context.
//   - AllVersions / GetVersion: version metadata and full historical
//     snapshots.
//
// Hierarchy consistency is enforced, not patched: when a record's class
// requires a subclass table row and that row is missing in the queried
// stage or version, reads report an integrity error instead of returning
// partial fields.
package versioned
