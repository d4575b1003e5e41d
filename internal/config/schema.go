package config

// Config holds creel configuration.
// Stored at: ./config.yaml or ~/.creel/config.yaml
type Config struct {
	Provider   ProviderCfg   `mapstructure:"provider" yaml:"provider"`
	Pipeline   PipelineCfg   `mapstructure:"pipeline" yaml:"pipeline"`
	Population PopulationCfg `mapstructure:"population" yaml:"population"`
	Confidence ConfidenceCfg `mapstructure:"confidence" yaml:"confidence"`
}

// ProviderCfg configures the AI extraction backend.
type ProviderCfg struct {
	Type       string  `mapstructure:"type" yaml:"type"`               // "openai" or "mock"
	Model      string  `mapstructure:"model" yaml:"model"`             // Model name
	APIKey     string  `mapstructure:"api_key" yaml:"api_key"`         // API key (supports ${ENV_VAR} syntax)
	BaseURL    string  `mapstructure:"base_url" yaml:"base_url"`       // Optional OpenAI-compatible endpoint
	RateLimit  float64 `mapstructure:"rate_limit" yaml:"rate_limit"`   // Requests per minute
	MaxRetries int     `mapstructure:"max_retries" yaml:"max_retries"` // Retry attempts per call
	TimeoutSec int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// PipelineCfg configures chunking, segmentation and streaming behavior.
type PipelineCfg struct {
	MaxChunkKB       int      `mapstructure:"max_chunk_kb" yaml:"max_chunk_kb"`             // Splitter size bound
	RelevantKeywords []string `mapstructure:"relevant_keywords" yaml:"relevant_keywords"`   // Segmenter classification terms
	ChunkConcurrency int      `mapstructure:"chunk_concurrency" yaml:"chunk_concurrency"`   // Parallel chunks (1 = sequential)
	TextExtractTool  string   `mapstructure:"text_extract_tool" yaml:"text_extract_tool"`   // Primary extraction binary
}

// PopulationCfg configures how extracted records map onto the entity store.
type PopulationCfg struct {
	DefaultState   string `mapstructure:"default_state" yaml:"default_state"`     // Jurisdiction for new water bodies
	RegulationYear int    `mapstructure:"regulation_year" yaml:"regulation_year"` // Year stamped on new records
}

// ConfidenceCfg is the completeness-based default scoring policy used
// when the backend supplies no explicit confidence.
type ConfidenceCfg struct {
	High   float64 `mapstructure:"high" yaml:"high"`     // All rules carry a kind and a concrete limit
	Medium float64 `mapstructure:"medium" yaml:"medium"` // Some rules complete
	Low    float64 `mapstructure:"low" yaml:"low"`       // No complete rule
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderCfg{
			Type:       "openai",
			Model:      "gpt-4o-mini",
			APIKey:     "${OPENAI_API_KEY}",
			RateLimit:  60.0,
			MaxRetries: 3,
			TimeoutSec: 120,
		},
		Pipeline: PipelineCfg{
			MaxChunkKB:       4000,
			RelevantKeywords: []string{"fishing", "regulation", "limit"},
			ChunkConcurrency: 1,
			TextExtractTool:  "pdftotext",
		},
		Population: PopulationCfg{
			DefaultState:   "MN",
			RegulationYear: 2026,
		},
		Confidence: ConfidenceCfg{
			High:   0.9,
			Medium: 0.6,
			Low:    0.3,
		},
	}
}
