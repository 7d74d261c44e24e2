// Package wire encodes and decodes the datagrams of the partitioned transfer
// protocol. A datagram is a one byte type tag followed by a type specific
// body. Integers are big-endian uint16. There is no length prefix, the UDP
// datagram boundary is the message boundary.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

type Type uint8

const (
	TypeStartTransfer     Type = 0x01 // C->S, empty
	TypePacketInfo        Type = 0x02 // S->C, chunks per partition
	TypeInitiateTransfer  Type = 0x03 // C->S, partition offset
	TypePartitionPacket   Type = 0x04 // S->C, global chunk index + chunk bytes
	TypePartitionFinished Type = 0x05 // S->C, chunk count of next partition, 0 if none
	TypeFileTransferred   Type = 0x06 // both directions, empty
	TypeMissingPacket     Type = 0x07 // C->S, local chunk index + partition offset
)

const (
	headerSize = 1
	fieldSize  = 2

	// MaxDatagramSize is large enough for any UDP payload.
	MaxDatagramSize = 65507

	// MaxChunkSize is the largest chunk that fits a PARTITION_PACKET.
	MaxChunkSize = MaxDatagramSize - headerSize - fieldSize

	// MaxIndex is the largest value of any uint16 field.
	MaxIndex = 0xFFFF
)

var (
	ErrMalformedPacket    = errors.New("malformed packet")
	ErrUnknownMessageType = errors.New("unknown message type")
)

func (t Type) String() string {
	switch t {
	case TypeStartTransfer:
		return "START_TRANSFER"
	case TypePacketInfo:
		return "PACKET_INFO"
	case TypeInitiateTransfer:
		return "INITIATE_TRANSFER"
	case TypePartitionPacket:
		return "PARTITION_PACKET"
	case TypePartitionFinished:
		return "PARTITION_FINISHED"
	case TypeFileTransferred:
		return "FILE_TRANSFERRED"
	case TypeMissingPacket:
		return "MISSING_PACKET"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(t))
	}
}

// bodySize returns the exact body length for fixed size types. variable is
// true for types whose body only has a minimum length.
func bodySize(t Type) (size int, variable bool, known bool) {
	switch t {
	case TypeStartTransfer, TypeFileTransferred:
		return 0, false, true
	case TypePacketInfo, TypeInitiateTransfer, TypePartitionFinished:
		return fieldSize, false, true
	case TypeMissingPacket:
		return 2 * fieldSize, false, true
	case TypePartitionPacket:
		return fieldSize, true, true
	default:
		return 0, false, false
	}
}

// Packet is a decoded datagram.
type Packet struct {
	Type Type

	// Value is the single uint16 field of the packet: chunks per partition
	// for PACKET_INFO, partition offset for INITIATE_TRANSFER, global chunk
	// index for PARTITION_PACKET, next partition size for PARTITION_FINISHED
	// and missing local index for MISSING_PACKET.
	Value uint16

	// Partition is the partition offset of a MISSING_PACKET.
	Partition uint16

	// Data is the chunk carried by a PARTITION_PACKET. Decode returns a
	// slice of the input buffer.
	Data []byte
}

func StartTransfer() Packet {
	return Packet{Type: TypeStartTransfer}
}

func PacketInfo(chunksPerPartition uint16) Packet {
	return Packet{Type: TypePacketInfo, Value: chunksPerPartition}
}

func InitiateTransfer(partition uint16) Packet {
	return Packet{Type: TypeInitiateTransfer, Value: partition}
}

func PartitionPacket(globalIndex uint16, data []byte) Packet {
	return Packet{Type: TypePartitionPacket, Value: globalIndex, Data: data}
}

func PartitionFinished(nextSize uint16) Packet {
	return Packet{Type: TypePartitionFinished, Value: nextSize}
}

func FileTransferred() Packet {
	return Packet{Type: TypeFileTransferred}
}

func MissingPacket(localIndex, partition uint16) Packet {
	return Packet{Type: TypeMissingPacket, Value: localIndex, Partition: partition}
}

// Encode returns the datagram for p.
func Encode(p Packet) ([]byte, error) {
	size, variable, known := bodySize(p.Type)
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMessageType, p.Type)
	}

	if variable {
		if len(p.Data) > MaxChunkSize {
			return nil, fmt.Errorf("%w: %s payload of %d bytes exceeds %d", ErrMalformedPacket, p.Type, len(p.Data), MaxChunkSize)
		}
		size += len(p.Data)
	} else if len(p.Data) != 0 {
		return nil, fmt.Errorf("%w: %s carries no payload", ErrMalformedPacket, p.Type)
	}

	b := make([]byte, headerSize+size)
	b[0] = byte(p.Type)

	switch p.Type {
	case TypePacketInfo, TypeInitiateTransfer, TypePartitionFinished:
		binary.BigEndian.PutUint16(b[1:], p.Value)
	case TypeMissingPacket:
		binary.BigEndian.PutUint16(b[1:], p.Value)
		binary.BigEndian.PutUint16(b[3:], p.Partition)
	case TypePartitionPacket:
		binary.BigEndian.PutUint16(b[1:], p.Value)
		copy(b[3:], p.Data)
	}

	return b, nil
}

// Decode parses a datagram. It fails with ErrUnknownMessageType for an empty
// datagram or unknown tag and with ErrMalformedPacket when the body does not
// have the shape of the declared type.
func Decode(b []byte) (Packet, error) {
	if len(b) < headerSize {
		return Packet{}, fmt.Errorf("%w: empty datagram", ErrUnknownMessageType)
	}

	t := Type(b[0])
	body := b[headerSize:]

	size, variable, known := bodySize(t)
	if !known {
		return Packet{}, fmt.Errorf("%w: %s", ErrUnknownMessageType, t)
	}

	if (variable && len(body) < size) || (!variable && len(body) != size) {
		return Packet{}, fmt.Errorf("%w: %s with %d byte body", ErrMalformedPacket, t, len(body))
	}

	p := Packet{Type: t}
	switch t {
	case TypePacketInfo, TypeInitiateTransfer, TypePartitionFinished:
		p.Value = binary.BigEndian.Uint16(body)
	case TypeMissingPacket:
		p.Value = binary.BigEndian.Uint16(body)
		p.Partition = binary.BigEndian.Uint16(body[fieldSize:])
	case TypePartitionPacket:
		p.Value = binary.BigEndian.Uint16(body)
		p.Data = body[fieldSize:]
	}

	return p, nil
}
