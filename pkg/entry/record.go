// Package entry defines the record identifier that index entries point at.
package entry

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sahibgoa/b-tree-index-manager/pkg/storage"
)

// RecordIDSize is the marshalled size of a RecordID: page number, slot
// number, and two bytes of padding.
const RecordIDSize = 8

// RecordID is a (page, slot) pair identifying one tuple in a relation file.
// The index treats it as opaque: produced by the relation scanner and
// returned verbatim by queries.
type RecordID struct {
	PageNo storage.PageID
	SlotNo uint16
}

// NewRecordID constructs a RecordID with the specified page and slot.
func NewRecordID(pageNo storage.PageID, slotNo uint16) RecordID {
	return RecordID{PageNo: pageNo, SlotNo: slotNo}
}

// Marshal serializes the RecordID into the first RecordIDSize bytes of data.
func (rid RecordID) Marshal(data []byte) {
	binary.LittleEndian.PutUint32(data[0:4], uint32(rid.PageNo))
	binary.LittleEndian.PutUint16(data[4:6], rid.SlotNo)
	data[6] = 0
	data[7] = 0
}

// UnmarshalRecordID deserializes a RecordID from the first RecordIDSize
// bytes of data.
func UnmarshalRecordID(data []byte) RecordID {
	return RecordID{
		PageNo: storage.PageID(binary.LittleEndian.Uint32(data[0:4])),
		SlotNo: binary.LittleEndian.Uint16(data[4:6]),
	}
}

// Print writes the RecordID to the specified writer in the following
// format, trailing separator included: (<page>, <slot>),
func (rid RecordID) Print(w io.Writer) {
	fmt.Fprintf(w, "(%d, %d), ", rid.PageNo, rid.SlotNo)
}
