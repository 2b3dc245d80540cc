package netstack

import (
	"encoding/binary"
	"fmt"
)

////////////////////////////////////////////////////////////////////////////////
// IPv4: header codec and the internet checksum.
////////////////////////////////////////////////////////////////////////////////

// IPv4Header captures the fixed 20B header plus any options. Version and
// IHL are implied; Marshal always writes version 4 and derives IHL from the
// options length.
//
// Fragmentation is not supported: Flags carries the flags and fragment
// offset as one raw field that the stack never interprets.
type IPv4Header struct {
	TOS      uint8
	ID       uint16
	Flags    uint16
	TTL      uint8
	Protocol uint8
	Checksum uint16 // as parsed; Marshal recomputes
	Src      uint32
	Dst      uint32
	Options  []byte
}

// IPv4Datagram is a header plus payload.
type IPv4Datagram struct {
	Header  IPv4Header
	Payload []byte
}

// Marshal serializes the datagram, deriving total length and recomputing
// the header checksum. Options must be padded to a multiple of 4.
func (d *IPv4Datagram) Marshal() []byte {
	headerLen := ipv4HeaderLen + len(d.Header.Options)
	buf := make([]byte, headerLen+len(d.Payload))

	buf[0] = byte(4<<4 | headerLen/4)
	buf[1] = d.Header.TOS
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(buf)))
	binary.BigEndian.PutUint16(buf[4:6], d.Header.ID)
	binary.BigEndian.PutUint16(buf[6:8], d.Header.Flags)
	buf[8] = d.Header.TTL
	buf[9] = d.Header.Protocol
	binary.BigEndian.PutUint32(buf[12:16], d.Header.Src)
	binary.BigEndian.PutUint32(buf[16:20], d.Header.Dst)
	copy(buf[ipv4HeaderLen:headerLen], d.Header.Options)
	copy(buf[headerLen:], d.Payload)

	binary.BigEndian.PutUint16(buf[10:12], checksumFinish(checksumAdd(0, buf[:headerLen])))
	return buf
}

// ParseIPv4Datagram decodes and validates a datagram: version, IHL, total
// length and header checksum all have to hold. The payload is sliced to the
// header's total length, dropping link-layer padding.
func ParseIPv4Datagram(data []byte) (IPv4Datagram, error) {
	if len(data) < ipv4HeaderLen {
		return IPv4Datagram{}, fmt.Errorf("ipv4 header too short: %d", len(data))
	}
	if version := data[0] >> 4; version != 4 {
		return IPv4Datagram{}, fmt.Errorf("unsupported ipv4 version: %d", version)
	}
	headerLen := int(data[0]&0x0f) * 4
	if headerLen < ipv4HeaderLen || len(data) < headerLen {
		return IPv4Datagram{}, fmt.Errorf("ipv4 header length mismatch: %d", headerLen)
	}
	totalLen := int(binary.BigEndian.Uint16(data[2:4]))
	if totalLen < headerLen || totalLen > len(data) {
		return IPv4Datagram{}, fmt.Errorf("ipv4 total length mismatch: %d", totalLen)
	}
	if checksumFinish(checksumAdd(0, data[:headerLen])) != 0 {
		return IPv4Datagram{}, fmt.Errorf("ipv4 header checksum mismatch")
	}

	d := IPv4Datagram{
		Header: IPv4Header{
			TOS:      data[1],
			ID:       binary.BigEndian.Uint16(data[4:6]),
			Flags:    binary.BigEndian.Uint16(data[6:8]),
			TTL:      data[8],
			Protocol: data[9],
			Checksum: binary.BigEndian.Uint16(data[10:12]),
			Src:      binary.BigEndian.Uint32(data[12:16]),
			Dst:      binary.BigEndian.Uint32(data[16:20]),
		},
		Payload: data[headerLen:totalLen],
	}
	if headerLen > ipv4HeaderLen {
		d.Header.Options = data[ipv4HeaderLen:headerLen]
	}
	return d, nil
}

////////////////////////////////////////////////////////////////////////////////
// Internet checksum (RFC 1071): 16-bit one's complement sum with fold.
// Shared by the IPv4 header and the TCP pseudo-header computation.
////////////////////////////////////////////////////////////////////////////////

func checksumAdd(sum uint32, data []byte) uint32 {
	for i := 0; i+1 < len(data); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if len(data)%2 == 1 {
		sum += uint32(data[len(data)-1]) << 8
	}
	return sum
}

func checksumFinish(sum uint32) uint16 {
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return ^uint16(sum)
}

// pseudoHeaderSum feeds the TCP pseudo-header (src, dst, zero+protocol,
// segment length) into a running checksum.
func pseudoHeaderSum(src, dst uint32, protocol uint8, length int) uint32 {
	var pseudo [12]byte
	binary.BigEndian.PutUint32(pseudo[0:4], src)
	binary.BigEndian.PutUint32(pseudo[4:8], dst)
	pseudo[9] = protocol
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(length))
	return checksumAdd(0, pseudo[:])
}
