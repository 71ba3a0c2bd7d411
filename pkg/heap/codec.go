package heap

import "encoding/binary"

// Little-endian accessors over raw page bytes.

func getUint16(data []byte, offset int64) uint16 {
	return binary.LittleEndian.Uint16(data[offset : offset+2])
}

func putUint16(data []byte, offset int64, v uint16) {
	binary.LittleEndian.PutUint16(data[offset:offset+2], v)
}

func getUint32(data []byte, offset int64) uint32 {
	return binary.LittleEndian.Uint32(data[offset : offset+4])
}

func putUint32(data []byte, offset int64, v uint32) {
	binary.LittleEndian.PutUint32(data[offset:offset+4], v)
}
