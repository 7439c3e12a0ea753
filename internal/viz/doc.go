// Package viz renders a running fluid simulation in the terminal.
//
// The live view is a Bubble Tea program. Its tick drives a
// [frame.ManualPacer], so every UI tick advances the scheduler by one frame
// and the braille canvas shows the frame just drawn.
//
// # Key Bindings
//
//	Space - Pause/Resume frame requests
//	T     - Cycle color themes
//	?     - Show help overlay
//	Q     - Stop the simulation and quit
package viz
