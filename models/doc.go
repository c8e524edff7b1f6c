// Package models provides shared data structures for tradegate.
//
// This package contains the core data models used across the failover
// coordinator, the signal gate, the command processor and the HTTP API.
// Keeping them in a separate package lets every component import them
// without creating circular dependencies.
//
// The models in this package represent:
//   - Lease: the single shared record naming the active host
//   - ControlFlags: the gate state consulted for every inbound signal
//   - Signal: one inbound trading alert
//   - OwnerCommand / CommandResponse: one operator control message and its reply
//
// All structs include JSON tags for API serialization.
package models
