package btree

import (
	"bytes"

	"github.com/cespare/xxhash"

	"github.com/sahibgoa/b-tree-index-manager/pkg/buffer"
	"github.com/sahibgoa/b-tree-index-manager/pkg/storage"
)

// indexMeta is the in-memory form of the header page: the parameters the
// index was built with and where its root currently lives.
type indexMeta struct {
	relationName   string
	attrByteOffset int32
	attrType       AttrType
	rootPageNo     storage.PageID
}

// paddedName returns name truncated or NUL-padded to RelationNameSize bytes.
func paddedName(name string) []byte {
	padded := make([]byte, RelationNameSize)
	copy(padded, name)
	return padded
}

// writeMeta serializes meta onto the pinned header frame and stamps the
// checksum over the preceding fields.
func writeMeta(frame *buffer.Frame, meta indexMeta) {
	data := frame.Data()
	copy(data[metaNameOffset:metaNameOffset+RelationNameSize], paddedName(meta.relationName))
	putInt32(data, metaAttrOffset, meta.attrByteOffset)
	putInt32(data, metaTypeOffset, int32(meta.attrType))
	putPageNo(data, metaRootOffset, meta.rootPageNo)
	putUint64(data, metaChecksumOffset, xxhash.Sum64(data[:metaChecksumOffset]))
}

// readMeta deserializes the header frame. ok is false if the stored
// checksum does not cover the stored fields, meaning the header (or the
// file under it) is not an index header we wrote.
func readMeta(frame *buffer.Frame) (meta indexMeta, ok bool) {
	data := frame.Data()
	name := data[metaNameOffset : metaNameOffset+RelationNameSize]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	meta = indexMeta{
		relationName:   string(name),
		attrByteOffset: getInt32(data, metaAttrOffset),
		attrType:       AttrType(getInt32(data, metaTypeOffset)),
		rootPageNo:     getPageNo(data, metaRootOffset),
	}
	return meta, getUint64(data, metaChecksumOffset) == xxhash.Sum64(data[:metaChecksumOffset])
}

// matches reports whether the stored metadata agrees with the caller's
// construction parameters. Names longer than the stored width compare by
// their stored prefix.
func (meta indexMeta) matches(relationName string, attrByteOffset int32, attrType AttrType) bool {
	return bytes.Equal(paddedName(meta.relationName), paddedName(relationName)) &&
		meta.attrByteOffset == attrByteOffset &&
		meta.attrType == attrType
}
