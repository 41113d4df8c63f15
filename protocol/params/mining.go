package params

// Mining and difficulty parameters shared by the core and the session.
//
// Keep these dependency-free so pow and chain can import them without
// pulling in orchestration code.
const (
	// DefaultDifficulty is the number of leading zero hex characters a new
	// session requires.
	DefaultDifficulty = 2

	// MaxDifficulty caps user-selected difficulty.
	MaxDifficulty = 8

	// ProgressInterval is how many nonces pass between progress reports and
	// cancellation checks during a search.
	ProgressInterval = 100
)

// Attack simulator parameters.
const (
	// DefaultAttackerPower is the attacker's share of network hash power (%).
	DefaultAttackerPower = 60

	// AttackerMinDelayMS and AttackerDelayPerPowerMS shape the delay between
	// attacker blocks: max(min, (100-power)*perPower).
	AttackerMinDelayMS      = 1000
	AttackerDelayPerPowerMS = 50

	AttackerFrom     = "Attacker"
	AttackerTo       = "Void"
	AttackerAmount   = 666
	AttackerIDPrefix = "atk-"
)

// MaxMempoolSize bounds pending transactions.
const MaxMempoolSize = 1000
