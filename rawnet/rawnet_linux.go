package rawnet

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/jdkoftinoff/go-avdecc"
)

// hwAddrViaIoctl and indexViaIoctl are the ioctl fallback for interface
// metadata netlink did not populate.

func controlSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return -1, errors.Wrap(err, "rawnet: control socket")
	}
	return fd, nil
}

func doIoctl(fd int, req uintptr, r *ifreq) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(unsafe.Pointer(r)))
	if errno != 0 {
		return errno
	}
	return nil
}

func hwAddrViaIoctl(ifaceName string) (avdecc.MAC, error) {
	fd, err := controlSocket()
	if err != nil {
		return avdecc.MAC{}, err
	}
	defer unix.Close(fd)

	r := newIfreq(ifaceName)
	if err := doIoctl(fd, unix.SIOCGIFHWADDR, &r); err != nil {
		return avdecc.MAC{}, errors.Wrap(err, "rawnet: SIOCGIFHWADDR")
	}
	return avdecc.MAC(r.hwAddr()), nil
}

func indexViaIoctl(ifaceName string) (int, error) {
	fd, err := controlSocket()
	if err != nil {
		return 0, err
	}
	defer unix.Close(fd)

	r := newIfreq(ifaceName)
	if err := doIoctl(fd, unix.SIOCGIFINDEX, &r); err != nil {
		return 0, errors.Wrap(err, "rawnet: SIOCGIFINDEX")
	}
	return int(r.index()), nil
}
