// Package lake extracts target-code charge rows from a partitioned Parquet
// lake laid out as <dir>/<partition>/*.parquet.
package lake

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/gyeh/pricepanel/internal/model"
	"github.com/gyeh/pricepanel/internal/parquetread"
)

// HospitalsFile is the lake-level hospital attribute table.
const HospitalsFile = "hospitals.parquet"

// ListPartitions returns the sorted partition keys (subdirectory names) of dir.
func ListPartitions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: lake dir %s does not exist", model.ErrMissingPrerequisite, dir)
		}
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	var parts []string
	for _, e := range entries {
		if e.IsDir() && e.Name()[0] != '.' && e.Name()[0] != '_' {
			parts = append(parts, e.Name())
		}
	}
	sort.Strings(parts)
	return parts, nil
}

// PartitionFiles lists the Parquet files of one partition, sorted.
func PartitionFiles(dir, partition string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, partition, "*.parquet"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// LoadHospitals reads the hospital attribute table. A missing file is a
// missing prerequisite.
func LoadHospitals(path string) ([]model.Hospital, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: hospitals file %s does not exist", model.ErrMissingPrerequisite, path)
		}
		return nil, fmt.Errorf("stat hospitals file: %w", err)
	}
	hospitals, err := parquetread.ReadAll[model.Hospital](path)
	if err != nil {
		return nil, fmt.Errorf("read hospitals: %w", err)
	}
	return hospitals, nil
}
