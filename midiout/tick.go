package midiout

// Ticks are a free-running uint32 counter that wraps at 2^32. Two ticks are
// compared through their signed difference, so ordering stays correct across
// the wrap as long as live events are less than 2^31 ticks apart.

// Due reports whether an event stamped at tick has been reached by now.
func Due(tick, now uint32) bool {
	return int32(now-tick) >= 0
}

// Before reports whether a comes earlier than b on the wrapping timeline.
func Before(a, b uint32) bool {
	return int32(a-b) < 0
}
