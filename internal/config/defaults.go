package config

import "os"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}

	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/db/smartimagefinder.db"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "./data/images"
	}
	if cfg.Storage.TitleIndexPath == "" {
		cfg.Storage.TitleIndexPath = "./data/vectors/title_vectors.idx"
	}
	if cfg.Storage.DescriptionIndexPath == "" {
		cfg.Storage.DescriptionIndexPath = "./data/vectors/description_vectors.idx"
	}
	if cfg.Storage.ImageIndexPath == "" {
		cfg.Storage.ImageIndexPath = "./data/vectors/image_vectors.idx"
	}
	if cfg.Storage.IdentityMapPath == "" {
		cfg.Storage.IdentityMapPath = "./data/vectors/uuid_map.gob"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "./data/bleve"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1024
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 77
	}
	if cfg.Embedding.ImageSize == 0 {
		cfg.Embedding.ImageSize = 224
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.APIBase == "" {
		cfg.Embedding.APIBase = "https://api.siliconflow.cn/v1"
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "jina-clip-v2"
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.FailureThreshold == 0 {
		cfg.Embedding.FailureThreshold = 3
	}
	if cfg.Embedding.CooldownSeconds == 0 {
		cfg.Embedding.CooldownSeconds = 30
	}

	if cfg.Vector.IndexType == "" {
		cfg.Vector.IndexType = "memory"
	}

	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 20
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 1000
	}
	if cfg.Search.OverfetchFactor == 0 {
		cfg.Search.OverfetchFactor = 2
	}
	if cfg.Search.TextBackend == "" {
		cfg.Search.TextBackend = "sql"
	}
	if cfg.Search.TextWeight == 0 && cfg.Search.VectorWeight == 0 {
		cfg.Search.TextWeight = 0.4
		cfg.Search.VectorWeight = 0.6
	}
	if cfg.Search.TextFanout.IsZero() {
		cfg.Search.TextFanout = FanoutWeights{Title: 0.7, Description: 0.3}
	}
	if cfg.Search.ImageFanout.IsZero() {
		cfg.Search.ImageFanout = FanoutWeights{Title: 0.15, Description: 0.15, Image: 0.7}
	}
	if cfg.Search.SimilarFanout.IsZero() {
		cfg.Search.SimilarFanout = FanoutWeights{Title: 0.15, Description: 0.15, Image: 0.7}
	}

	if cfg.Maintenance.CheckpointSchedule == "" {
		cfg.Maintenance.CheckpointSchedule = "@every 5m"
	}
	if cfg.Maintenance.CompactionSchedule == "" {
		cfg.Maintenance.CompactionSchedule = "@daily"
	}
	if cfg.Maintenance.OrphanRatioThreshold == 0 {
		cfg.Maintenance.OrphanRatioThreshold = 0.3
	}

	if cfg.Analysis.APIBase == "" {
		cfg.Analysis.APIBase = cfg.Embedding.APIBase
	}
	if cfg.Analysis.APIKey == "" {
		cfg.Analysis.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Analysis.APIKey == "" {
		cfg.Analysis.APIKey = cfg.Embedding.APIKey
	}
	if cfg.Analysis.Model == "" {
		cfg.Analysis.Model = "Qwen/Qwen2.5-VL-32B-Instruct"
	}
	if cfg.Analysis.Detail == "" {
		cfg.Analysis.Detail = "low"
	}
	if cfg.Analysis.TimeoutSeconds == 0 {
		cfg.Analysis.TimeoutSeconds = 60
	}

	if cfg.Watch.Patterns == nil {
		cfg.Watch.Patterns = []string{"**/*.{jpg,jpeg,png,gif}", "**/*.{JPG,JPEG,PNG,GIF}"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
