// Package storage persists the relay's single piece of state: the
// fingerprint of the last update that was delivered.
//
// It also keeps an append-only history of delivery attempts for operators.
// Drivers:
//   - "file": the state file holds only the hex fingerprint; history goes to
//     <state>.history.jsonl next to it
//   - "sqlite": kv + history tables in one database file
package storage
