// Package dispatch owns the single long-lived execution loop all bot work
// runs on.
//
// Synchronous callers (HTTP handlers, cron ticks) never touch bot state
// directly; they hand a job to the loop via Submit/SubmitWait and get an
// immediate ack or a bounded wait. The loop processes jobs one at a time,
// FIFO, so dispatcher-side state needs no extra locking.
package dispatch
