package avdecc

// Transport is the platform raw-socket interface the core depends on.
// Package rawnet provides a reference Linux implementation; any
// implementation of this interface is sufficient to drive Controller.
type Transport interface {
	// MACAddress returns the bound interface's hardware address.
	MACAddress() MAC
	// SendFrame transmits a fully-built frame. It must not block; if the
	// implementation queues internally, a non-nil error here means
	// transport-level failure only.
	SendFrame(frame []byte) error
}

// FrameSource is satisfied by a Transport that also delivers received
// frames; kept separate from Transport because not every embedding needs
// both directions wired through the same value (e.g. tests drive
// Controller.HandleFrame directly without any FrameSource).
type FrameSource interface {
	// Recv blocks until a frame is available or the transport is closed,
	// returning (nil, err) on closure. The network context's read loop is
	// expected to call this in a tight loop and feed results to
	// Controller.HandleFrame.
	Recv() ([]byte, error)
}
