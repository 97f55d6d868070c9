package lake

import (
	"context"
	"io"

	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/parquetread"
	"github.com/gyeh/pricepanel/internal/registry"
)

// PartitionPlan is a dry-run estimate for one partition.
type PartitionPlan struct {
	Partition string
	Files     int
	Rows      int64 // from file metadata
	Sampled   int64
	Matched   int64
	Err       error
}

// EstimatedMatches projects the sampled match rate onto the partition.
func (p *PartitionPlan) EstimatedMatches() int64 {
	if p.Sampled == 0 {
		return 0
	}
	return int64(float64(p.Matched) / float64(p.Sampled) * float64(p.Rows))
}

// Plan reads file metadata and samples up to sampleRows rows per file,
// counting target-code matches. Nothing is written.
func Plan(ctx context.Context, dir string, partitions []string, filter *registry.CodeFilter, sampleRows int) ([]PartitionPlan, error) {
	plans := make([]PartitionPlan, 0, len(partitions))
	for _, part := range partitions {
		if err := ctx.Err(); err != nil {
			return plans, err
		}
		p := PartitionPlan{Partition: part}
		files, err := PartitionFiles(dir, part)
		if err != nil {
			p.Err = err
			plans = append(plans, p)
			continue
		}
		p.Files = len(files)
		for _, f := range files {
			if err := sampleFile(f, filter, sampleRows, &p); err != nil {
				p.Err = err
				break
			}
		}
		plans = append(plans, p)
	}
	return plans, nil
}

func sampleFile(path string, filter *registry.CodeFilter, sampleRows int, p *PartitionPlan) error {
	r, err := parquetread.Open[model.RawChargeRow](path)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := parquetread.ValidateSchema(r.Schema()); err != nil {
		return err
	}
	p.Rows += r.NumRows()

	if sampleRows <= 0 {
		return nil
	}
	buf := make([]model.RawChargeRow, sampleRows)
	n, err := r.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	for i := 0; i < n; i++ {
		p.Sampled++
		if filter.Matches(&buf[i]) {
			p.Matched++
		}
	}
	return nil
}
