// Package tui is the terminal front-end of the runner: a bubbletea
// program showing the command, the latest output line and the run state,
// driven by the r, c and q keys.
//
// Display events arrive on the runner's goroutines. A Bridge forwards
// them to the program with Program.Send so the model only changes on the
// UI goroutine.
package tui
