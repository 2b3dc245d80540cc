package netstack

import (
	"encoding/binary"
	"fmt"
)

////////////////////////////////////////////////////////////////////////////////
// TCP segment codec.
//
// Segments carry a fixed 20B header; options are skipped on parse and never
// emitted. The checksum covers the pseudo-header, so both directions need
// the enclosing datagram's addresses.
////////////////////////////////////////////////////////////////////////////////

const (
	tcpFlagFIN = 1 << 0
	tcpFlagSYN = 1 << 1
	tcpFlagRST = 1 << 2
	tcpFlagACK = 1 << 4
)

// Marshal serializes the segment as the payload of a datagram from src to
// dst, computing the checksum over the pseudo-header.
func (s *TCPSegment) Marshal(src, dst uint32) []byte {
	buf := make([]byte, tcpHeaderLen+len(s.Payload))
	binary.BigEndian.PutUint16(buf[0:2], s.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], s.DstPort)
	binary.BigEndian.PutUint32(buf[4:8], uint32(s.SeqNo))
	binary.BigEndian.PutUint32(buf[8:12], uint32(s.AckNo))
	buf[12] = (tcpHeaderLen / 4) << 4

	var flags byte
	if s.FIN {
		flags |= tcpFlagFIN
	}
	if s.SYN {
		flags |= tcpFlagSYN
	}
	if s.RST {
		flags |= tcpFlagRST
	}
	if s.ACK {
		flags |= tcpFlagACK
	}
	buf[13] = flags

	binary.BigEndian.PutUint16(buf[14:16], s.Window)
	copy(buf[tcpHeaderLen:], s.Payload)

	sum := pseudoHeaderSum(src, dst, IPProtoTCP, len(buf))
	binary.BigEndian.PutUint16(buf[16:18], checksumFinish(checksumAdd(sum, buf)))
	return buf
}

// ParseTCPSegment decodes the payload of a datagram from src to dst,
// verifying the checksum and the data offset. Options are discarded.
func ParseTCPSegment(data []byte, src, dst uint32) (TCPSegment, error) {
	if len(data) < tcpHeaderLen {
		return TCPSegment{}, fmt.Errorf("tcp header too short: %d", len(data))
	}
	headerLen := int(data[12]>>4) * 4
	if headerLen < tcpHeaderLen || len(data) < headerLen {
		return TCPSegment{}, fmt.Errorf("tcp data offset mismatch: %d", headerLen)
	}

	sum := pseudoHeaderSum(src, dst, IPProtoTCP, len(data))
	if checksumFinish(checksumAdd(sum, data)) != 0 {
		return TCPSegment{}, fmt.Errorf("tcp checksum mismatch")
	}

	flags := data[13]
	return TCPSegment{
		SrcPort: binary.BigEndian.Uint16(data[0:2]),
		DstPort: binary.BigEndian.Uint16(data[2:4]),
		SeqNo:   SeqNum(binary.BigEndian.Uint32(data[4:8])),
		AckNo:   SeqNum(binary.BigEndian.Uint32(data[8:12])),
		FIN:     flags&tcpFlagFIN != 0,
		SYN:     flags&tcpFlagSYN != 0,
		RST:     flags&tcpFlagRST != 0,
		ACK:     flags&tcpFlagACK != 0,
		Window:  binary.BigEndian.Uint16(data[14:16]),
		Payload: data[headerLen:],
	}, nil
}
