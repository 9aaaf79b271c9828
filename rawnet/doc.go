// Package rawnet is the Linux reference implementation of avdecc.Transport
// and avdecc.FrameSource: an AF_PACKET/SOCK_RAW socket bound to a single
// interface, carrying full Ethernet frames (including the header the core
// builds itself).
package rawnet
