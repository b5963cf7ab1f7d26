// Package broadcast fans one message out to every known recipient in
// fixed-size batches: concurrent sends within a batch, a pacing pause
// between batches, per-recipient failures absorbed and counted.
package broadcast
