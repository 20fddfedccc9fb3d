// Package control drives actuators: permission arbitration, batch
// command validation and rate-limited publishing.
//
// The arbiter is a pure decision table over (control mode, command
// source, force). The Controller partitions batches into processed,
// skipped, missing and blocked so callers always see what happened to
// every command. The Publisher coalesces bursts into at most rateHz
// publishes per second per control topic, delivering the most recent
// desired state per actuator.
package control
