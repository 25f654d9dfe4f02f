// Package commands implements the ratchetsim CLI.
//
// # Commands
//
//   - simulate: run a two-party exchange over a lossy, reordering in-memory
//     link and report how many messages were delivered, dropped or refused.
//   - keygen: print a fresh ratchet key pair.
//
// The simulator exists to exercise the skipped-key bounds and the wire codec
// under realistic delivery patterns; it is not a transport.
package commands
