package common

const (
	RedisStreamPipelineRunEvents = "pipeline.run.events"

	StoreDriverPostgres   = "postgres"
	StoreDriverClickHouse = "clickhouse"
	StoreDriverMemory     = "memory"

	SourceProviderPolygon = "polygon"
	SourceProviderYahoo   = "yahoo"

	AIProviderGemini = "gemini"
	AIProviderOpenAI = "openai"
	AIProviderClaude = "claude"
	AIProviderNone   = "none"

	MissedPeriodPolicySkip    = "skip"
	MissedPeriodPolicyCatchUp = "catch_up"

	// UpsertBatchSize bounds the rows written per INSERT statement.
	UpsertBatchSize = 100
)
