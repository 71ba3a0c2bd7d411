package btree

import (
	"github.com/sahibgoa/b-tree-index-manager/pkg/entry"
	"github.com/sahibgoa/b-tree-index-manager/pkg/storage"
)

// The header page occupies this fixed position in every index file. This
// saves us the effort of having to find the metadata every time we open
// an index.
const headerPageNum storage.PageID = 1

// EmptyKey marks an unused key slot in both node layouts. Because the
// sentinel lives in the key's value band, indexed keys must be non-negative.
const EmptyKey int32 = -1

// Key and child-pointer sizes shared by both node layouts.
const (
	keySize    int64 = 4
	pageNoSize int64 = 4
)

// Header page layout.
const (
	// Relation names are stored fixed-width and NUL-padded; longer names
	// are truncated consistently on both write and validate.
	RelationNameSize   int64 = 20
	metaNameOffset     int64 = 0
	metaAttrOffset     int64 = metaNameOffset + RelationNameSize
	metaTypeOffset     int64 = metaAttrOffset + 4
	metaRootOffset     int64 = metaTypeOffset + 4
	metaChecksumOffset int64 = metaRootOffset + pageNoSize
)

// Non-leaf node layout: level, keys, then child page numbers (one more
// child than keys).
const (
	nonLeafLevelOffset  int64 = 0
	nonLeafKeysOffset   int64 = nonLeafLevelOffset + 4
	KeysPerNonLeaf      int64 = (storage.PageSize - 4 - pageNoSize) / (keySize + pageNoSize)
	nonLeafPageNoOffset int64 = nonLeafKeysOffset + keySize*KeysPerNonLeaf
)

// Leaf node layout: right sibling link, keys, then record ids.
const (
	leafRightSibOffset int64 = 0
	leafKeysOffset     int64 = leafRightSibOffset + pageNoSize
	KeysPerLeaf        int64 = (storage.PageSize - pageNoSize) / (keySize + entry.RecordIDSize)
	leafRIDsOffset     int64 = leafKeysOffset + keySize*KeysPerLeaf
)

// Operator bounds a range scan on one side.
type Operator int

const (
	GT Operator = iota
	GTE
	LT
	LTE
)

// AttrType tags the type of the indexed attribute. Only IntegerAttr is
// implemented; the other tags exist for the header format but Construct
// rejects them.
type AttrType int32

const (
	IntegerAttr AttrType = iota
	DoubleAttr
	StringAttr
)
