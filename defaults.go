package main

// Simulator defaults.
//
// Keep these centralized so main/daemon/cli/storage stay consistent.
const (
	DefaultDataDir    = "./blocksim-data"
	DefaultDBFilename = "blocksim.db"
	DefaultAPIAddr    = "127.0.0.1:8334"
	DefaultConfigName = "blocksim"
)
