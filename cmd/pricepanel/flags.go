package main

import (
	"time"

	"github.com/spf13/pflag"
)

func addLakeFlags(f *pflag.FlagSet) {
	f.String("lake-dir", "", "Root of the partitioned Parquet lake")
	f.String("hospitals-file", "", "Hospital attribute Parquet file (default <lake-dir>/hospitals.parquet)")
	f.Int("scan-workers", 1, "Partitions scanned concurrently")
}

func addRemoteFlags(f *pflag.FlagSet) {
	f.String("remote-url", "", "SQL-over-HTTP query endpoint")
	f.String("remote-token", "", "Bearer token for --remote-url (or PRICEPANEL_REMOTE_TOKEN)")
	f.String("remote-dsn", "", "Postgres connection string of the hosted charge tables")
	f.String("state-dir", "state", "Directory holding done.log, partial files and the hospital cache")
	f.Int("page-size", 1000, "Rows per remote page")
	f.Duration("entity-delay", time.Second, "Pause after an entity with rows")
	f.Duration("empty-entity-delay", 250*time.Millisecond, "Pause after an entity with no rows")
	f.Duration("error-cooldown", 30*time.Second, "Pause after a failed entity")
	f.Int("max-retries", 3, "Retries per remote query")
	f.Duration("retry-base-delay", 2*time.Second, "First retry backoff, doubled per attempt")
	f.Duration("request-timeout", 2*time.Minute, "Timeout per remote query attempt")
	f.Int("breaker-failures", 5, "Consecutive failures that open the circuit breaker")
	f.Duration("breaker-timeout", time.Minute, "Time the circuit breaker stays open")
}

func addBuildFlags(f *pflag.FlagSet) {
	f.String("crosswalk-file", "", "CSV crosswalk filling ccn, aha_id and system_id")
	f.Bool("compress", false, "Write gzip-compressed CSV outputs")
	f.String("s3-bucket", "", "Upload outputs to this S3 bucket")
	f.String("s3-prefix", "", "Key prefix for S3 uploads")
	f.String("s3-region", "us-east-1", "AWS region for S3 uploads")
	f.String("panel-dsn", "", "Load the panel into this Postgres database")
}
