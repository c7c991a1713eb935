package mem

import "encoding/binary"

// The simulated machine is little endian. The conversions below move values
// between the machine's byte order and host integers.

// WordToHost decodes a 4-byte machine word.
func WordToHost(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// ShortToHost decodes a 2-byte machine half word.
func ShortToHost(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}

// WordToMachine encodes a host value as a 4-byte machine word.
func WordToMachine(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

// ShortToMachine encodes a host value as a 2-byte machine half word.
func ShortToMachine(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}
