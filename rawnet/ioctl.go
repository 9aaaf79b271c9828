package rawnet

// ifreq mirrors struct ifreq from <linux/if.h>: a 16-byte interface name
// followed by a union. Only the two members rawnet needs are named; the
// rest of the union is left as padding bytes.
type ifreq struct {
	Name [16]byte
	Data [24]byte // large enough for the sockaddr/int/mtu members used below
}

func newIfreq(name string) ifreq {
	var r ifreq
	copy(r.Name[:], name)
	return r
}

func (r *ifreq) hwAddr() [6]byte {
	var mac [6]byte
	// sa_family(2) + sa_data[14]; the hardware address starts at sa_data[0].
	copy(mac[:], r.Data[2:8])
	return mac
}

func (r *ifreq) index() int32 {
	return int32(r.Data[0]) | int32(r.Data[1])<<8 | int32(r.Data[2])<<16 | int32(r.Data[3])<<24
}

func (r *ifreq) mtu() int32 {
	return r.index()
}
