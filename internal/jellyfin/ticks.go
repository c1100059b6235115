package jellyfin

// The wire protocol expresses time in ticks, 100-nanosecond units: 10,000
// ticks per millisecond. Internal positions and durations are milliseconds;
// conversion happens only at the protocol boundary.
const TicksPerMillisecond int64 = 10_000

// TicksToMs converts server ticks to milliseconds.
func TicksToMs(ticks int64) int64 {
	return ticks / TicksPerMillisecond
}

// MsToTicks converts milliseconds to server ticks. Negative positions clamp
// to zero.
func MsToTicks(ms int64) int64 {
	if ms < 0 {
		ms = 0
	}
	return ms * TicksPerMillisecond
}
