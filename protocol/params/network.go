package params

// NetworkID names the simulated network. It prefixes persisted snapshots so
// a data directory from another tool is rejected on load.
const NetworkID = "blocksim_local"

// SnapshotVersion is bumped whenever the persisted snapshot layout changes.
// Loading a snapshot with a different version fails; there is no migration.
const SnapshotVersion uint32 = 1
