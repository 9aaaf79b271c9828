// Package avdecc implements the controller side of IEEE 1722.1 (AVDECC):
// discovery, enumeration and control of talkers, listeners and other
// controllers on a Layer-2 Ethernet network using the AVTP EtherType
// (0x22F0).
//
// The package owns three interlocking protocol state machines (discovery,
// AECP, ACMP), the dependency-ordered descriptor-enumeration driver that
// walks an entity's descriptor graph, and the in-memory model of every
// discovered entity. It does not own a raw socket: callers supply a
// Transport (see platform.go) and feed received frames in through
// Controller.HandleFrame. Package rawnet provides a reference Linux
// implementation of Transport.
package avdecc
