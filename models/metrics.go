package models

type MetricName string

// Counts
const (
	MetricName_CreditsRejected         MetricName = "credits_rejected"
	MetricName_ExpansionFallback       MetricName = "expansion_fallback"
	MetricName_GatewayBytesUploaded    MetricName = "gateway_bytes_uploaded"
	MetricName_InvalidLedgerRecord     MetricName = "invalid_ledger_record"
	MetricName_ManifestDegraded        MetricName = "manifest_degraded"
	MetricName_ReconcileFailed         MetricName = "reconcile_failed"
	MetricName_ReconcileSucceeded      MetricName = "reconcile_succeeded"
	MetricName_ReconcileCacheHit       MetricName = "reconcile_cache_hit"
	MetricName_UnpinFailed             MetricName = "unpin_failed"
	MetricName_UnpinSucceeded          MetricName = "unpin_succeeded"
	MetricName_UploadFailed            MetricName = "upload_failed"
	MetricName_UploadRejectedBusy      MetricName = "upload_rejected_busy"
	MetricName_UploadStarted           MetricName = "upload_started"
	MetricName_UploadSucceeded         MetricName = "upload_succeeded"
	MetricName_UploadTransactionFailed MetricName = "upload_transaction_failed"
)

// Distributions
const (
	MetricName_BatchSize     MetricName = "batch_size"
	MetricName_SnapshotFiles MetricName = "snapshot_files"
)

const MetricsCallerName = "go-registry"
