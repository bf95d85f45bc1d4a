package state

// GlobalConfig is the process-wide singleton: who may resolve markets and
// toggle the pause flag, and where platform fee shares land. Created once by
// the deploying authority, mutated only by pause/unpause, never destroyed.
type GlobalConfig struct {
	Authority      string
	PlatformWallet string
	Paused         bool
}

func (g *GlobalConfig) Clone() *GlobalConfig {
	c := *g
	return &c
}
