package jobs

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDepreciationRun posts the monthly straight-line depreciation
	// for every active fixed asset of a business.
	TaskDepreciationRun = "assets:depreciation_run"
	// TaskLedgerIntegrity scans the ledger for source documents whose
	// entry lines no longer balance.
	TaskLedgerIntegrity = "ledger:integrity_check"
)
