package rawnet

import (
	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/jdkoftinoff/go-avdecc"
)

// htons converts a host-order uint16 to network byte order, the same
// helper every AF_PACKET raw-socket user needs for the protocol argument
// of socket(2) (moby-moby's raw-socket paths do the equivalent inline).
func htons(v uint16) uint16 {
	return v<<8 | v>>8
}

// Socket is a SOCK_RAW/AF_PACKET socket bound to one interface and
// restricted to the AVTP ethertype, implementing avdecc.Transport and
// avdecc.FrameSource.
type Socket struct {
	fd        int
	ifIndex   int
	mac       avdecc.MAC
	ifaceName string
}

// Open binds a raw AVTP socket to the named interface. It resolves the
// interface's index and hardware address via netlink first, falling back
// to the equivalent ioctls (SIOCGIFINDEX / SIOCGIFHWADDR) only if the
// netlink lookup itself fails to populate a field.
func Open(ifaceName string) (*Socket, error) {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return nil, errors.Wrapf(err, "rawnet: resolve interface %q", ifaceName)
	}
	attrs := link.Attrs()

	var mac avdecc.MAC
	if len(attrs.HardwareAddr) == 6 {
		copy(mac[:], attrs.HardwareAddr)
	} else {
		mac, err = hwAddrViaIoctl(ifaceName)
		if err != nil {
			return nil, errors.Wrapf(err, "rawnet: hardware address for %q", ifaceName)
		}
	}

	ifIndex := attrs.Index
	if ifIndex == 0 {
		ifIndex, err = indexViaIoctl(ifaceName)
		if err != nil {
			return nil, errors.Wrapf(err, "rawnet: interface index for %q", ifaceName)
		}
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(avdecc.EtherTypeAVTP)))
	if err != nil {
		return nil, errors.Wrap(err, "rawnet: socket(AF_PACKET, SOCK_RAW)")
	}

	sa := &unix.SockaddrLinklayer{
		Protocol: htons(avdecc.EtherTypeAVTP),
		Ifindex:  ifIndex,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "rawnet: bind to %q", ifaceName)
	}

	if err := joinMulticast(fd, ifIndex, avdecc.ADPMulticast); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "rawnet: join adp multicast group")
	}

	return &Socket{fd: fd, ifIndex: ifIndex, mac: mac, ifaceName: ifaceName}, nil
}

// joinMulticast adds the well-known ADP multicast MAC to the interface's
// receive filter (IEEE 1722.1 91:e0:f0:01:00:00) via PACKET_ADD_MEMBERSHIP,
// the AF_PACKET analogue of an Ethernet-level multicast join.
func joinMulticast(fd, ifIndex int, mac avdecc.MAC) error {
	mreq := unix.PacketMreq{
		Ifindex: int32(ifIndex),
		Type:    unix.PACKET_MR_MULTICAST,
		Alen:    6,
	}
	copy(mreq.Address[:6], mac[:])
	return unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, &mreq)
}

// MACAddress implements avdecc.Transport.
func (s *Socket) MACAddress() avdecc.MAC { return s.mac }

// SendFrame implements avdecc.Transport. It writes the frame unchanged;
// the caller (the avdecc core) has already built a complete Ethernet
// frame including destination MAC and ethertype.
func (s *Socket) SendFrame(frame []byte) error {
	_, err := unix.Write(s.fd, frame)
	if err != nil {
		return errors.Wrap(err, "rawnet: send")
	}
	return nil
}

// Recv implements avdecc.FrameSource. It blocks on the socket's file
// descriptor; Close unblocks it with EBADF, which callers should treat as
// the closure signal documented on avdecc.FrameSource.
func (s *Socket) Recv() ([]byte, error) {
	buf := make([]byte, avdecc.MaxAECPFrameLen+avdecc.EthernetHeaderLen)
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		return nil, errors.Wrap(err, "rawnet: recv")
	}
	return buf[:n], nil
}

// Close releases the underlying file descriptor.
func (s *Socket) Close() error {
	return unix.Close(s.fd)
}

var _ avdecc.Transport = (*Socket)(nil)
var _ avdecc.FrameSource = (*Socket)(nil)
