package database

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sahibgoa/b-tree-index-manager/pkg/btree"
	"github.com/sahibgoa/b-tree-index-manager/pkg/repl"
)

// Creates a DB Repl for the given database.
func DatabaseRepl(db *Database) *repl.REPL {
	r := repl.NewRepl()
	r.AddCommand("create", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleCreate(db, payload)
	}, "Create a relation. usage: create <relation> <recordsize>")

	r.AddCommand("insert", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleInsert(db, payload)
	}, "Insert tuples. usage: insert <value>... into <relation>")

	r.AddCommand("index", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleIndex(db, payload)
	}, "Build or open a secondary index. usage: index <relation> on <offset>")

	r.AddCommand("scan", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleScan(db, payload)
	}, "Range-scan an index. usage: scan <relation> <offset> <gt|gte> <low> <lt|lte> <high>")

	r.AddCommand("pretty", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandlePretty(db, payload)
	}, "Print an index's internal representation. usage: pretty <relation> <offset>")

	r.AddCommand("verify", func(payload string, replConfig *repl.REPLConfig) (string, error) {
		return HandleVerify(db, payload)
	}, "Check an index's structural invariants. usage: verify <relation> <offset>")

	return r
}

// Handle create relation.
func HandleCreate(d *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: create <relation> <recordsize>
	if len(fields) != 3 {
		return "", fmt.Errorf("usage: create <relation> <recordsize>")
	}
	recordSize, err := strconv.Atoi(fields[2])
	if err != nil {
		return "", fmt.Errorf("create error: %v", err)
	}
	if _, err = d.CreateRelation(fields[1], int64(recordSize)); err != nil {
		return "", err
	}
	return fmt.Sprintf("relation %s created.\n", fields[1]), nil
}

// Handle insert. Each value becomes one record with the value serialized at
// byte offset 0 and the rest of the record zeroed.
func HandleInsert(d *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: insert <value>... into <relation>
	numFields := len(fields)
	if numFields < 4 || fields[numFields-2] != "into" {
		return "", fmt.Errorf("usage: insert <value>... into <relation>")
	}
	relation, err := d.GetRelation(fields[numFields-1])
	if err != nil {
		return "", err
	}
	record := make([]byte, relation.RecordSize())
	for _, field := range fields[1 : numFields-2] {
		value, err := strconv.Atoi(field)
		if err != nil {
			return "", fmt.Errorf("insert error: %v", err)
		}
		binary.LittleEndian.PutUint32(record[0:4], uint32(int32(value)))
		if _, err := relation.InsertRecord(record); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("inserted %d tuple(s).\n", numFields-3), nil
}

// Handle index build.
func HandleIndex(d *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: index <relation> on <offset>
	if len(fields) != 4 || fields[2] != "on" {
		return "", fmt.Errorf("usage: index <relation> on <offset>")
	}
	offset, err := strconv.Atoi(fields[3])
	if err != nil {
		return "", fmt.Errorf("index error: %v", err)
	}
	index, err := d.BuildIndex(fields[1], int32(offset))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("index %s ready.\n", index.GetName()), nil
}

// lookupIndex parses "<relation> <offset>" at the given fields and returns
// the corresponding open or built index.
func lookupIndex(d *Database, relationField, offsetField string) (*btree.BTreeIndex, error) {
	offset, err := strconv.Atoi(offsetField)
	if err != nil {
		return nil, err
	}
	return d.BuildIndex(relationField, int32(offset))
}

// Handle scan.
func HandleScan(d *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: scan <relation> <offset> <gt|gte> <low> <lt|lte> <high>
	if len(fields) != 7 {
		return "", fmt.Errorf("usage: scan <relation> <offset> <gt|gte> <low> <lt|lte> <high>")
	}
	index, err := lookupIndex(d, fields[1], fields[2])
	if err != nil {
		return "", fmt.Errorf("scan error: %v", err)
	}
	var lowOp, highOp btree.Operator
	switch fields[3] {
	case "gt":
		lowOp = btree.GT
	case "gte":
		lowOp = btree.GTE
	default:
		return "", btree.ErrBadOpcodes
	}
	switch fields[5] {
	case "lt":
		highOp = btree.LT
	case "lte":
		highOp = btree.LTE
	default:
		return "", btree.ErrBadOpcodes
	}
	low, err := strconv.Atoi(fields[4])
	if err != nil {
		return "", fmt.Errorf("scan error: %v", err)
	}
	high, err := strconv.Atoi(fields[6])
	if err != nil {
		return "", fmt.Errorf("scan error: %v", err)
	}

	if err = index.StartScan(int32(low), lowOp, int32(high), highOp); err != nil {
		return "", err
	}
	defer index.EndScan()
	var sb strings.Builder
	count := 0
	for {
		rid, err := index.ScanNext()
		if errors.Is(err, btree.ErrIndexScanCompleted) {
			break
		}
		if err != nil {
			return "", err
		}
		rid.Print(&sb)
		count++
	}
	sb.WriteString(fmt.Sprintf("\n%d matching tuple(s).\n", count))
	return sb.String(), nil
}

// Handle pretty printing.
func HandlePretty(d *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: pretty <relation> <offset>
	if len(fields) != 3 {
		return "", fmt.Errorf("usage: pretty <relation> <offset>")
	}
	index, err := lookupIndex(d, fields[1], fields[2])
	if err != nil {
		return "", fmt.Errorf("pretty error: %v", err)
	}
	var sb strings.Builder
	index.Print(&sb)
	return sb.String(), nil
}

// Handle verification.
func HandleVerify(d *Database, payload string) (output string, err error) {
	fields := strings.Fields(payload)
	// Usage: verify <relation> <offset>
	if len(fields) != 3 {
		return "", fmt.Errorf("usage: verify <relation> <offset>")
	}
	index, err := lookupIndex(d, fields[1], fields[2])
	if err != nil {
		return "", fmt.Errorf("verify error: %v", err)
	}
	if err = btree.Verify(index); err != nil {
		return "", err
	}
	return "index is structurally sound.\n", nil
}
