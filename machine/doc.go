// Package machine implements one virtual machine: an independently
// clocked event loop with a Lamport clock, an inbound message queue fed
// by its listener, and persistent connections to every peer.
package machine
