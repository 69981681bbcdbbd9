// Package mixer composites several independently timed raw video inputs
// into a single output stream.
//
// Each input is a channel with its own negotiated format, playback segment,
// stacking order, position and opacity. Buffers are pushed per channel; the
// engine runs an output tick whenever every channel has either queued data
// or has ended, so a slow input naturally holds back the others. Each tick
// chooses, per channel, the buffer overlapping the output window
// [start, start+1/fps), paints the background and blends the chosen frames
// in ascending z order. Downstream lateness reported through UpdateQoS makes
// the engine skip frames it could not deliver in time.
//
// The engine does not run goroutines of its own. Work happens on the
// goroutine that calls Push, EndOfStream or Tick.
package mixer
