package sql

import (
	"embed"
)

// Migrations holds the panel sink DDL, applied in filename order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/fetch_charge_page.sql
var FetchChargePage string

//go:embed queries/list_hospitals.sql
var ListHospitals string

//go:embed queries/insert_panel_run.sql
var InsertPanelRun string

//go:embed queries/delete_panel_run.sql
var DeletePanelRun string

//go:embed queries/create_migration_ledger.sql
var CreateMigrationLedger string

//go:embed queries/applied_migrations.sql
var AppliedMigrations string

//go:embed queries/record_migration.sql
var RecordMigration string
