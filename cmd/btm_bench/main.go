// btm_bench compares the B+Tree index against Pebble (CockroachDB's LSM)
// on the same build-then-range-scan workload, recording latencies to a CSV
// and a bar chart.
package main

import (
	"encoding/binary"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sahibgoa/b-tree-index-manager/pkg/btree"
	"github.com/sahibgoa/b-tree-index-manager/pkg/database"
)

const (
	recordSize int64 = 16
	scanWidth  int32 = 1000
)

// BenchResult is one timed operation on one engine.
type BenchResult struct {
	Name      string
	Operation string
	LatencyNs int64
}

// record writes one result row to the CSV.
func record(w *csv.Writer, res BenchResult) error {
	return w.Write([]string{
		res.Name,
		res.Operation,
		fmt.Sprintf("%d", res.LatencyNs),
	})
}

// benchBTree bulk-builds the index over tuples random keys and times the
// build and a set of range scans.
func benchBTree(dir string, keys []int32) (build, scan BenchResult, err error) {
	db, err := database.Open(dir)
	if err != nil {
		return
	}
	defer db.Close()
	relation, err := db.CreateRelation("bench", recordSize)
	if err != nil {
		return
	}
	rec := make([]byte, recordSize)
	for _, key := range keys {
		binary.LittleEndian.PutUint32(rec[0:4], uint32(key))
		if _, err = relation.InsertRecord(rec); err != nil {
			return
		}
	}

	start := time.Now()
	index, err := db.BuildIndex("bench", 0)
	if err != nil {
		return
	}
	build = BenchResult{"btree", "build", time.Since(start).Nanoseconds()}

	start = time.Now()
	for low := int32(0); low < 1<<20; low += 1 << 16 {
		if err = index.StartScan(low, btree.GTE, low+scanWidth, btree.LT); err != nil {
			return
		}
		for {
			if _, err = index.ScanNext(); err != nil {
				if err == btree.ErrIndexScanCompleted {
					err = nil
					break
				}
				return
			}
		}
		if err = index.EndScan(); err != nil {
			return
		}
	}
	scan = BenchResult{"btree", "scan", time.Since(start).Nanoseconds()}
	return
}

// benchPebble runs the same workload against a Pebble store.
func benchPebble(dir string, keys []int32) (build, scan BenchResult, err error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return
	}
	defer db.Close()

	encode := func(key int32) []byte {
		// Big-endian preserves sort order under Pebble's byte comparator.
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(key))
		return b
	}

	start := time.Now()
	for i, key := range keys {
		rid := make([]byte, 8)
		binary.LittleEndian.PutUint64(rid, uint64(i))
		if err = db.Set(encode(key), rid, pebble.NoSync); err != nil {
			return
		}
	}
	build = BenchResult{"pebble", "build", time.Since(start).Nanoseconds()}

	start = time.Now()
	for low := int32(0); low < 1<<20; low += 1 << 16 {
		var iter *pebble.Iterator
		iter, err = db.NewIter(&pebble.IterOptions{
			LowerBound: encode(low),
			UpperBound: encode(low + scanWidth),
		})
		if err != nil {
			return
		}
		for valid := iter.First(); valid; valid = iter.Next() {
			_ = iter.Value()
		}
		if err = iter.Close(); err != nil {
			return
		}
	}
	scan = BenchResult{"pebble", "scan", time.Since(start).Nanoseconds()}
	return
}

// savePlot renders scan latencies as a bar chart.
func savePlot(path string, results []BenchResult) error {
	p := plot.New()
	p.Title.Text = "range scan latency"
	p.Y.Label.Text = "ns"
	values := make(plotter.Values, 0, len(results))
	names := make([]string, 0, len(results))
	for _, res := range results {
		if res.Operation != "scan" {
			continue
		}
		values = append(values, float64(res.LatencyNs))
		names = append(names, res.Name)
	}
	bars, err := plotter.NewBarChart(values, vg.Points(40))
	if err != nil {
		return err
	}
	p.Add(bars)
	p.NominalX(names...)
	return p.Save(4*vg.Inch, 4*vg.Inch, path)
}

func main() {
	var tuplesFlag = flag.Int("tuples", 100000, "tuples to index")
	var outFlag = flag.String("out", "data/bench", "output folder")
	var seedFlag = flag.Int64("seed", 42, "rng seed")
	flag.Parse()

	if err := os.MkdirAll(*outFlag, 0775); err != nil {
		log.Fatal(err)
	}
	rng := rand.New(rand.NewSource(*seedFlag))
	keys := make([]int32, *tuplesFlag)
	for i := range keys {
		keys[i] = rng.Int31n(1 << 20)
	}

	bBuild, bScan, err := benchBTree(filepath.Join(*outFlag, "btree"), keys)
	if err != nil {
		log.Fatal(err)
	}
	pBuild, pScan, err := benchPebble(filepath.Join(*outFlag, "pebble"), keys)
	if err != nil {
		log.Fatal(err)
	}
	results := []BenchResult{bBuild, bScan, pBuild, pScan}

	csvFile, err := os.Create(filepath.Join(*outFlag, "results.csv"))
	if err != nil {
		log.Fatal(err)
	}
	w := csv.NewWriter(csvFile)
	if err := w.Write([]string{"name", "operation", "latency_ns"}); err != nil {
		log.Fatal(err)
	}
	for _, res := range results {
		if err := record(w, res); err != nil {
			log.Fatal(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatal(err)
	}
	if err := csvFile.Close(); err != nil {
		log.Fatal(err)
	}

	if err := savePlot(filepath.Join(*outFlag, "scan_latency.png"), results); err != nil {
		log.Fatal(err)
	}
	for _, res := range results {
		fmt.Printf("%-8s %-6s %12d ns\n", res.Name, res.Operation, res.LatencyNs)
	}
}
