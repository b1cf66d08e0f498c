package models

import "time"

// Gateway
const GatewayFetchTimeout = 120 * time.Second
const GatewayUploadTimeout = 30 * time.Minute
const DefaultGatewayRateLimit = 16
const DefaultGatewayQueueDepth = 100

// Ledger
const LedgerQueryTimeout = 30 * time.Second
const LedgerSubmitTimeout = 5 * time.Minute

// Credits
const CreditsQueryTimeout = 10 * time.Second

// Reconciliation cache
const DefaultCacheTtl = 30 * time.Second
const DefaultCacheRefreshInterval = 5 * time.Minute
const DefaultCacheSize = 1024

// Uploads
const DefaultUploadConcurrency = 1
const DefaultExpandConcurrency = 8
const DefaultPendingStaleAfter = 30 * time.Minute

// BatchManifestSuffix names the extra object uploaded with every batch.
const BatchManifestSuffix = "-info.json"

const MaxUploadProgress = 100
