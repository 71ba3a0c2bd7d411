// Package database manages a directory of relation files and the B+Tree
// secondary indexes built over them, all sharing one buffer manager.
package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sahibgoa/b-tree-index-manager/pkg/btree"
	"github.com/sahibgoa/b-tree-index-manager/pkg/buffer"
	"github.com/sahibgoa/b-tree-index-manager/pkg/heap"
)

// Database holds the open relations and indexes under one data folder.
type Database struct {
	basepath  string
	bufMgr    *buffer.Manager
	relations map[string]*heap.HeapFile
	indexes   map[string]*btree.BTreeIndex // Keyed by "<relation>.<attrByteOffset>".
}

// Opens a database given a data folder.
func Open(folder string) (*Database, error) {
	// Ensure folder is of the form */
	if !strings.HasSuffix(folder, "/") {
		folder += "/"
	}
	// Make the data directory.
	err := os.MkdirAll(folder, 0775)
	if err != nil {
		return nil, err
	}
	return &Database{
		basepath:  folder,
		bufMgr:    buffer.NewManager(),
		relations: make(map[string]*heap.HeapFile),
		indexes:   make(map[string]*btree.BTreeIndex),
	}, nil
}

// Close each index and relation in the database, then close the database.
func (db *Database) Close() (err error) {
	for _, index := range db.indexes {
		curErr := index.Close()
		if err == nil {
			err = curErr
		}
	}
	for _, relation := range db.relations {
		curErr := relation.Close()
		if err == nil {
			err = curErr
		}
	}
	return err
}

// BufferManager returns the buffer manager shared by this database's files.
func (db *Database) BufferManager() *buffer.Manager {
	return db.bufMgr
}

// GetBasePath returns the basepath of the database.
func (db *Database) GetBasePath() string {
	return db.basepath
}

// CreateRelation creates a relation file with the given fixed record size.
func (db *Database) CreateRelation(name string, recordSize int64) (*heap.HeapFile, error) {
	// Ensure the relation name is alphanumeric.
	alphanumeric, _ := regexp.Compile(`\W`)
	if alphanumeric.MatchString(name) {
		return nil, errors.New("relation name must be alphanumeric")
	}
	if _, ok := db.relations[name]; ok {
		return nil, errors.New("relation already exists")
	}
	relation, err := heap.Create(filepath.Join(db.basepath, name), recordSize, db.bufMgr)
	if err != nil {
		return nil, err
	}
	db.relations[name] = relation
	return relation, nil
}

// GetRelation returns a relation by name, either from the open set, or by
// opening its file from disk.
func (db *Database) GetRelation(name string) (*heap.HeapFile, error) {
	if relation, ok := db.relations[name]; ok {
		return relation, nil
	}
	relation, err := heap.Open(filepath.Join(db.basepath, name), db.bufMgr)
	if err != nil {
		return nil, fmt.Errorf("relation %s not found: %w", name, err)
	}
	db.relations[name] = relation
	return relation, nil
}

// BuildIndex opens or creates the secondary index over the given relation's
// integer attribute at attrByteOffset.
func (db *Database) BuildIndex(relationName string, attrByteOffset int32) (*btree.BTreeIndex, error) {
	relation, err := db.GetRelation(relationName)
	if err != nil {
		return nil, err
	}
	key := btree.IndexName(relationName, attrByteOffset)
	if index, ok := db.indexes[key]; ok {
		return index, nil
	}
	index, _, err := btree.Construct(relation, db.bufMgr, attrByteOffset, btree.IntegerAttr)
	if err != nil {
		return nil, err
	}
	db.indexes[key] = index
	return index, nil
}

// GetIndexes returns the database's open indexes.
func (db *Database) GetIndexes() map[string]*btree.BTreeIndex {
	return db.indexes
}
