// Package dropout implements C3: a stateful mask that replays the last
// nonzero reading exactly once across a transient zero-reading, so a
// single noisy dropped frame does not read as the rider stopping.
package dropout

// channelState tracks one channel's (power or cadence) last accepted
// nonzero value and whether a mask has already been used for the
// current run of zeros.
type channelState struct {
	last    uint16
	dropped bool
}

func (c *channelState) apply(v uint16) uint16 {
	if v != 0 {
		c.last = v
		c.dropped = false
		return v
	}
	if c.last != 0 && !c.dropped {
		c.dropped = true
		return c.last
	}
	return 0
}

// Filter masks transient zero-readings independently for power and
// cadence. Exactly one masked zero is replayed per channel per run of
// zeros; subsequent zeros pass through unmodified (a legitimate stop).
type Filter struct {
	power   channelState
	cadence channelState
}

// New returns a Filter with no prior history.
func New() *Filter {
	return &Filter{}
}

// Apply masks power and cadence independently, returning the values to
// forward downstream.
func (f *Filter) Apply(power, cadence uint16) (outPower, outCadence uint16) {
	return f.power.apply(power), f.cadence.apply(cadence)
}
