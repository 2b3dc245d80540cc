package netstack

import (
	"encoding/binary"
	"fmt"
	"net"
)

////////////////////////////////////////////////////////////////////////////////
// Ethernet II framing.
////////////////////////////////////////////////////////////////////////////////

// EthernetFrame is a parsed Ethernet II frame: dst MAC, src MAC, EtherType,
// payload.
type EthernetFrame struct {
	Dst     net.HardwareAddr
	Src     net.HardwareAddr
	Type    uint16
	Payload []byte
}

// Marshal serializes the frame.
func (f *EthernetFrame) Marshal() []byte {
	buf := make([]byte, ethernetHeaderLen+len(f.Payload))
	copy(buf[0:6], f.Dst)
	copy(buf[6:12], f.Src)
	binary.BigEndian.PutUint16(buf[12:14], f.Type)
	copy(buf[ethernetHeaderLen:], f.Payload)
	return buf
}

// ParseEthernetFrame decodes a frame. The payload aliases data.
func ParseEthernetFrame(data []byte) (EthernetFrame, error) {
	if len(data) < ethernetHeaderLen {
		return EthernetFrame{}, fmt.Errorf("ethernet frame too short: %d", len(data))
	}
	return EthernetFrame{
		Dst:     net.HardwareAddr(data[0:6]),
		Src:     net.HardwareAddr(data[6:12]),
		Type:    binary.BigEndian.Uint16(data[12:14]),
		Payload: data[ethernetHeaderLen:],
	}, nil
}
