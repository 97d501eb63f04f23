package settings

// DB config keys and defaults for site settings.
const (
	// SiteNameKey is the DB config key for the UI site name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback UI site name.
	DefaultSiteName = "ChatDesk"
	// HistoryRedisEnabledKey toggles Redis-backed chat history.
	HistoryRedisEnabledKey = "CHAT_HISTORY_REDIS_ENABLED"
	// HistoryRedisAddrKey defines the Redis address for chat history.
	HistoryRedisAddrKey = "CHAT_HISTORY_REDIS_ADDR"
	// HistoryRedisPasswordKey defines the Redis password for chat history.
	HistoryRedisPasswordKey = "CHAT_HISTORY_REDIS_PASSWORD"
	// HistoryRedisDBKey defines the Redis DB index for chat history.
	HistoryRedisDBKey = "CHAT_HISTORY_REDIS_DB"
	// HistoryRedisPrefixKey defines the Redis key prefix for chat history.
	HistoryRedisPrefixKey = "CHAT_HISTORY_REDIS_PREFIX"
	// DefaultHistoryRedisEnabled keeps history in process memory by default.
	DefaultHistoryRedisEnabled = false
	// DefaultHistoryRedisPrefix is the fallback Redis key prefix.
	DefaultHistoryRedisPrefix = "chatdesk:hist"
)
