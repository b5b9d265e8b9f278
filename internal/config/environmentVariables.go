package config

import (
	"log/slog"
	"time"
)

const (
	IS_PROD                         = false
	LOG_LEVEL_PROD                  = slog.LevelInfo
	FALLBACK_REDIS_TO_INTERNALSTORE = true //if redis init fails, it falls back to an internal in-memory table
	TRACE_ID_KEY                    = "traceId"
	RATE_LIMIT_PER_SECOND           = 2
	BURST_RATE_LIMIT_PER_SECOND     = 5

	//auth
	NoAuthBypass = false
	AuthToken    = ""

	EmbeddingOutputDimensionality int32 = 1536
	EmbeddingsPerSecond                 = 5.0

	//vector indices, one per document kind that gets vectorized
	ReferenceIndexName    = "reference-proposals"
	ExistingWorkIndexName = "existing-work"

	RequestsPerNewWorkerCount int64 = 10
	MaxWorkerCount            int64 = 10
	MinWorkerCount            int64 = 1
	IdleWorkerTimeout               = 1 * time.Minute

	//serverTimeouts
	ReadTimeout            = 5 * time.Second
	WriteTimeout           = 10 * time.Second
	IdleTimeout            = 120 * time.Second
	ShutdownContextTimeout = 10 * time.Second

	//server listening port
	ServerListenAddr = ":3000"

	//job requests buffer limit
	BufferLimit = 100

	//vectorDB
	QdrantConnectionTimeout = 30 * time.Second
	QdrantHost              = ""
	QdrantPort              = 6334 //grpc
	QdrantUseTLS            = false
	QdrantPoolSize          = 1 //2-5 is preferred for prod according to documentation
	SqliteVectorPath        = "vectors.db"

	//llm
	GeminiModelName      = "gemini-2.5-flash"
	GoogleEmbeddingModel = "gemini-embedding-001"
	AnthropicModelName   = "claude-sonnet-4-5"
	OpenAIModelName      = "gpt-4o"
	OpenAIEmbeddingModel = "text-embedding-3-small"

	ModelTemperature float32 = 0.5
	MaxOutputTokens          = 8000
	//document generation needs the longer budget
	DocumentMaxOutputTokens = 16000

	MaxIdleConns        = 50
	MaxIdleConnsPerHost = 25
	IdleConnTimeout     = 60 * time.Second
	LLMRequestTimeout   = 5 * time.Minute

	//redis
	redisHost     = "127.0.0.1"
	redisPort     = "6379"
	RedisAddr     = redisHost + ":" + redisPort
	RedisPassword = ""

	//redis has 16 DB we can use
	RedisTableDB = 0

	BadgerPath = "data/badger"
	BlobRoot   = "data/blobs"

	//ingestion
	ChunkSize         = 1000
	ChunkOverlap      = 150
	MaxExtractedChars = 120000
	PdfPageTimeout    = 10 * time.Second

	//retrieval
	MaxDocuments   = 3
	OverFetchRatio = 10

	//pipeline
	StageTimeout      = 15 * time.Minute
	MaxRetries        = 3
	RetryBaseDelay    = 30 * time.Second
	SweepSchedule     = "@every 5m"
	SweepGrace        = 5 * time.Minute //on top of StageTimeout before a processing stage counts as stale
	PromptSection     = "proposal_writer"
	DefaultStoreKind  = "redis"
	DefaultVectorKind = "qdrant"
	DefaultLLM        = "gemini"
	DefaultEmbedder   = "google"
)
