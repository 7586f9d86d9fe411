// Package derive computes participant status from scan history.
//
// Everything here is a pure function of the history and the evaluation time.
// Nothing is persisted; callers recompute whenever they need a fresh view.
//
// Cycle accounting:
//   - a start-checkpoint record opens a cycle (a later start replaces an
//     unclosed one)
//   - the next terminal-checkpoint record closes it
//   - final-of-day records neither open nor close a cycle
//   - a trailing open start yields one in-progress cycle
package derive
