// mkfixture carves a small, representative lake partition out of a large
// charge Parquet file. Rows are bucketed by trait (DRG, procedure, payer,
// negotiated amount) so the sample exercises every build step.
// Usage: go run ./cmd/mkfixture --in testdata/charges.parquet --lake testdata/lake --partition state=NY --rows 200
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gyeh/pricepanel/internal/lake"
	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/output"
	"github.com/gyeh/pricepanel/internal/parquetread"
)

type bucket struct {
	name  string
	want  int
	match func(*model.RawChargeRow) bool
	rows  []model.RawChargeRow
}

func main() {
	in := flag.String("in", "testdata/charges.parquet", "input charge parquet")
	lakeDir := flag.String("lake", "testdata/lake", "output lake root")
	partition := flag.String("partition", "state=XX", "partition directory to write")
	maxRows := flag.Int("rows", 200, "max rows to output")
	flag.Parse()

	buckets := []*bucket{
		{name: "drg", want: 40, match: (*model.RawChargeRow).HasDRG},
		{name: "procedure", want: 60, match: (*model.RawChargeRow).HasProcedure},
		{name: "payer", want: 40, match: func(r *model.RawChargeRow) bool { return r.PayerName != nil && *r.PayerName != "" }},
		{name: "negotiated", want: 30, match: func(r *model.RawChargeRow) bool { return r.NegotiatedDollar != nil }},
	}
	var general []model.RawChargeRow
	entities := make(map[string]struct{})

	var total int
	_, err := parquetread.ForEach(*in, 1024, func(batch []model.RawChargeRow) error {
		for i := range batch {
			total++
			row := batch[i]
			placed := false
			for _, b := range buckets {
				if len(b.rows) < b.want && b.match(&row) {
					b.rows = append(b.rows, row)
					placed = true
					break
				}
			}
			if !placed && len(general) < *maxRows {
				general = append(general, row)
			}
		}
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *in, err)
		os.Exit(1)
	}
	fmt.Printf("Scanned %d rows\n", total)

	var selected []model.RawChargeRow
	for _, b := range buckets {
		for _, row := range b.rows {
			if len(selected) < *maxRows {
				selected = append(selected, row)
			}
		}
	}
	for _, row := range general {
		if len(selected) < *maxRows {
			selected = append(selected, row)
		}
	}
	for i := range selected {
		entities[selected[i].EntityID] = struct{}{}
	}

	out := filepath.Join(*lakeDir, *partition, "part-0.parquet")
	if err := output.WriteParquet(out, selected); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", out, err)
		os.Exit(1)
	}

	// Stub hospital records so the fixture lake passes the build's join.
	hpath := filepath.Join(*lakeDir, lake.HospitalsFile)
	if _, err := os.Stat(hpath); os.IsNotExist(err) {
		ids := make([]string, 0, len(entities))
		for id := range entities {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		hospitals := make([]model.Hospital, len(ids))
		for i, id := range ids {
			hospitals[i] = model.Hospital{EntityID: id, Name: id}
		}
		if err := output.WriteParquet(hpath, hospitals); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", hpath, err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %d hospital stubs to %s\n", len(hospitals), hpath)
	}

	fmt.Printf("Wrote %d rows to %s\n", len(selected), out)
	for _, b := range buckets {
		fmt.Printf("  %-10s %d\n", b.name, len(b.rows))
	}
	fmt.Printf("  %-10s %d\n", "entities", len(entities))
}
