package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Settings is the runtime configuration. Defaults come from the constant block,
// an optional TOML file overrides them and environment variables win last.
type Settings struct {
	Prod       bool   `toml:"prod"`
	ListenAddr string `toml:"listen_addr"`
	AuthToken  string `toml:"auth_token"`

	Storage   StorageSettings   `toml:"storage"`
	Vector    VectorSettings    `toml:"vector"`
	LLM       LLMSettings       `toml:"llm"`
	Embedding EmbeddingSettings `toml:"embedding"`
	Pipeline  PipelineSettings  `toml:"pipeline"`
}

type StorageSettings struct {
	KVBackend     string `toml:"kv_backend"` // redis | badger | memory
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	BadgerPath    string `toml:"badger_path"`
	BlobRoot      string `toml:"blob_root"`
}

type VectorSettings struct {
	Backend    string `toml:"backend"` // qdrant | sqlite
	QdrantHost string `toml:"qdrant_host"`
	QdrantPort int    `toml:"qdrant_port"`
	QdrantTLS  bool   `toml:"qdrant_tls"`
	SqlitePath string `toml:"sqlite_path"`
}

type LLMSettings struct {
	Provider        string  `toml:"provider"` // gemini | anthropic | openai
	Model           string  `toml:"model"`
	GoogleAPIKey    string  `toml:"google_api_key"`
	AnthropicAPIKey string  `toml:"anthropic_api_key"`
	OpenAIAPIKey    string  `toml:"openai_api_key"`
	Temperature     float32 `toml:"temperature"`
	MaxTokens       int     `toml:"max_tokens"`
	DocumentTokens  int     `toml:"document_max_tokens"`
}

type EmbeddingSettings struct {
	Provider   string  `toml:"provider"` // google | openai
	Model      string  `toml:"model"`
	Dimension  int32   `toml:"dimension"`
	PerSecond  float64 `toml:"per_second"`
	ChunkSize  int     `toml:"chunk_size"`
	Overlap    int     `toml:"chunk_overlap"`
	MaxExtract int     `toml:"max_extracted_chars"`
}

type PipelineSettings struct {
	MaxDocuments   int           `toml:"max_documents"`
	MaxRetries     int           `toml:"max_retries"`
	RetryBaseDelay time.Duration `toml:"retry_base_delay"`
	StageTimeout   time.Duration `toml:"stage_timeout"`
	SweepSchedule  string        `toml:"sweep_schedule"`
	PromptSection  string        `toml:"prompt_section"`
}

func Defaults() Settings {
	return Settings{
		Prod:       IS_PROD,
		ListenAddr: ServerListenAddr,
		AuthToken:  AuthToken,
		Storage: StorageSettings{
			KVBackend:     DefaultStoreKind,
			RedisAddr:     RedisAddr,
			RedisPassword: RedisPassword,
			RedisDB:       RedisTableDB,
			BadgerPath:    BadgerPath,
			BlobRoot:      BlobRoot,
		},
		Vector: VectorSettings{
			Backend:    DefaultVectorKind,
			QdrantHost: QdrantHost,
			QdrantPort: QdrantPort,
			QdrantTLS:  QdrantUseTLS,
			SqlitePath: SqliteVectorPath,
		},
		LLM: LLMSettings{
			Provider:       DefaultLLM,
			Temperature:    ModelTemperature,
			MaxTokens:      MaxOutputTokens,
			DocumentTokens: DocumentMaxOutputTokens,
		},
		Embedding: EmbeddingSettings{
			Provider:   DefaultEmbedder,
			Dimension:  EmbeddingOutputDimensionality,
			PerSecond:  EmbeddingsPerSecond,
			ChunkSize:  ChunkSize,
			Overlap:    ChunkOverlap,
			MaxExtract: MaxExtractedChars,
		},
		Pipeline: PipelineSettings{
			MaxDocuments:   MaxDocuments,
			MaxRetries:     MaxRetries,
			RetryBaseDelay: RetryBaseDelay,
			StageTimeout:   StageTimeout,
			SweepSchedule:  SweepSchedule,
			PromptSection:  PromptSection,
		},
	}
}

// Load builds Settings from defaults, the TOML file at path (skipped when path is
// empty) and the environment.
func Load(path string) (Settings, error) {
	s := Defaults()
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := toml.Unmarshal(content, &s); err != nil {
			return s, fmt.Errorf("invalid TOML in %s: %w", path, err)
		}
	}
	applyEnv(&s)
	return s, nil
}

func applyEnv(s *Settings) {
	setString(&s.ListenAddr, "LISTEN_ADDR")
	setString(&s.AuthToken, "AUTH_TOKEN")
	setBool(&s.Prod, "IS_PROD")

	setString(&s.Storage.KVBackend, "KV_BACKEND")
	setString(&s.Storage.RedisAddr, "REDIS_ADDR")
	setString(&s.Storage.RedisPassword, "REDIS_PASSWORD")
	setString(&s.Storage.BadgerPath, "BADGER_PATH")
	setString(&s.Storage.BlobRoot, "BLOB_ROOT")

	setString(&s.Vector.Backend, "VECTOR_BACKEND")
	setString(&s.Vector.QdrantHost, "QDRANT_HOST")
	setInt(&s.Vector.QdrantPort, "QDRANT_PORT")
	setString(&s.Vector.SqlitePath, "SQLITE_VECTOR_PATH")

	setString(&s.LLM.Provider, "LLM_PROVIDER")
	setString(&s.LLM.Model, "LLM_MODEL")
	setString(&s.LLM.GoogleAPIKey, "GOOGLE_API_KEY")
	setString(&s.LLM.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&s.LLM.OpenAIAPIKey, "OPENAI_API_KEY")

	setString(&s.Embedding.Provider, "EMBEDDING_PROVIDER")
	setString(&s.Embedding.Model, "EMBEDDING_MODEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
