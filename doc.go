// Package orby provides an embedded in-memory columnar index engine for Go.
//
// Orby stores fixed-width 128-bit cells in per-dimension lanes: each lane is
// one contiguous column, and all lanes share a single cursor so the cells of
// one logical row occupy the same index in every lane. Capacity is fixed at
// build time; there are no reallocations on the hot path.
//
// # Quick Start
//
//	ctx := context.Background()
//	eng, _ := orby.New("sessions").
//	    Capacity(1_000_000).
//	    Lanes(3).
//	    Ring().
//	    WithVault("./data").
//	    Build(ctx)
//	defer eng.Close(ctx)
//
//	id := cell.FromUUID(uuid.New())
//	eng.InsertBatch(ctx, []orby.Row{{id, cell.FromUint64(42), cell.FromUint64(now)}})
//
//	rows, _ := eng.FindBy(ctx, 0, []cell.Cell{id}, 0)
//
// # Addressing Modes
//
// Ring mode (the default) wraps the cursor at capacity and overwrites the
// oldest rows, which suits sliding-window workloads. Bounded mode rejects
// inserts once full with *CapacityExceededError; rows committed before the
// store filled stay committed.
//
// # Deletion Policies
//
// Tombstoning (the default) zeroes a slot in place and keeps all other
// indices stable. Compaction shifts every later row left by one in all
// lanes, keeping the store dense at the cost of index stability. The policy
// is fixed at build time.
//
// # Durability
//
// The vault mirrors each lane into its own file behind a full fsync
// barrier:
//
//	eng.Sleep(ctx)  // durable after this
//
// An optional operation log (WithAOF) records each mutation so state
// between Sleeps survives a crash, and single-file snapshots (SnapshotTo)
// capture the exact cursor position for archival or transport.
package orby
