package registry

const (
	Env_CacheRefreshInterval  = "CACHE_REFRESH_INTERVAL"
	Env_CacheSize             = "CACHE_SIZE"
	Env_CacheTtl              = "CACHE_TTL"
	Env_CreditsUrl            = "CREDITS_URL"
	Env_DiscordAlertWebhook   = "DISCORD_ALERT_WEBHOOK"
	Env_DiscordWarningWebhook = "DISCORD_WARNING_WEBHOOK"
	Env_GatewayUrl            = "GATEWAY_URL"
	Env_IpfsApiMultiaddr      = "IPFS_API_MULTIADDR"
	Env_LedgerRpcUrl          = "LEDGER_RPC_URL"
	Env_LedgerSignerKey       = "LEDGER_SIGNER_KEY"
	Env_LogLevel              = "LOG_LEVEL"
	Env_MetricsEndpoint       = "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"
	Env_PendingStaleAfter     = "PENDING_STALE_AFTER"
	Env_SnapshotDbPath        = "SNAPSHOT_DB_PATH"
	Env_UploadConcurrency     = "UPLOAD_CONCURRENCY"
)

const ServiceName = "go-registry"
