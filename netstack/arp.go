package netstack

import (
	"encoding/binary"
	"fmt"
	"net"
)

////////////////////////////////////////////////////////////////////////////////
// ARP (Address Resolution Protocol), Ethernet/IPv4 only.
////////////////////////////////////////////////////////////////////////////////

const (
	arpHardwareEthernet = 1
	arpProtoIPv4        = 0x0800

	// ARPOpRequest asks who holds the target IP.
	ARPOpRequest uint16 = 1
	// ARPOpReply answers with the sender's MAC.
	ARPOpReply uint16 = 2
)

// ARPMessage is the fixed 28-byte Ethernet/IPv4 ARP body.
type ARPMessage struct {
	Opcode    uint16
	SenderMAC net.HardwareAddr
	SenderIP  uint32
	TargetMAC net.HardwareAddr
	TargetIP  uint32
}

// Marshal serializes the message. A nil TargetMAC (a request that does not
// know the answer yet) encodes as zeros.
func (m *ARPMessage) Marshal() []byte {
	buf := make([]byte, arpMessageLen)
	binary.BigEndian.PutUint16(buf[0:2], arpHardwareEthernet)
	binary.BigEndian.PutUint16(buf[2:4], arpProtoIPv4)
	buf[4] = 6
	buf[5] = 4
	binary.BigEndian.PutUint16(buf[6:8], m.Opcode)
	copy(buf[8:14], m.SenderMAC)
	binary.BigEndian.PutUint32(buf[14:18], m.SenderIP)
	copy(buf[18:24], m.TargetMAC)
	binary.BigEndian.PutUint32(buf[24:28], m.TargetIP)
	return buf
}

// ParseARPMessage decodes an ARP body. Only Ethernet/IPv4 with the standard
// address sizes is spoken; anything else is an error the caller drops.
func ParseARPMessage(data []byte) (ARPMessage, error) {
	if len(data) < arpMessageLen {
		return ARPMessage{}, fmt.Errorf("arp packet too short: %d", len(data))
	}

	hwType := binary.BigEndian.Uint16(data[0:2])
	protoType := binary.BigEndian.Uint16(data[2:4])
	hwSize := data[4]
	protoSize := data[5]
	if hwType != arpHardwareEthernet || protoType != arpProtoIPv4 ||
		hwSize != 6 || protoSize != 4 {
		return ARPMessage{}, fmt.Errorf("unsupported arp: hw=%d proto=0x%04x hlen=%d plen=%d",
			hwType, protoType, hwSize, protoSize)
	}

	return ARPMessage{
		Opcode:    binary.BigEndian.Uint16(data[6:8]),
		SenderMAC: cloneMAC(net.HardwareAddr(data[8:14])),
		SenderIP:  binary.BigEndian.Uint32(data[14:18]),
		TargetMAC: cloneMAC(net.HardwareAddr(data[18:24])),
		TargetIP:  binary.BigEndian.Uint32(data[24:28]),
	}, nil
}
