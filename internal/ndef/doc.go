// Package ndef extracts the building type byte from the raw data area of
// an NFC Forum Type 2 tag.
//
// Ownership boundary:
// - TLV block walk and NDEF record parsing
//
// - the raw-scan recovery heuristic for damaged envelopes
//
// - encoding the companion record written by tagwrite
//
// The package is pure: no hardware, no state, no synchronization. Input
// buffers come off physically writable media and are treated as hostile;
// every length field is checked before use.
package ndef
