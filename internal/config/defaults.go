package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Storage.IndexPath == "" {
		cfg.Storage.IndexPath = "/usr/local/var/mirip/data/products_index.bin"
	}
	if cfg.Storage.MappingPath == "" {
		cfg.Storage.MappingPath = "/usr/local/var/mirip/data/mapping.json"
	}
	if cfg.Storage.HistoryPath == "" {
		cfg.Storage.HistoryPath = "/usr/local/var/mirip/data/builds.db"
	}
	if cfg.Mirror.Prefix == "" {
		cfg.Mirror.Prefix = "mirip"
	}
	if cfg.Source.Table == "" {
		cfg.Source.Table = "products"
	}
	if cfg.Source.DumpPath == "" {
		cfg.Source.DumpPath = "./product_details.sql"
	}
	if cfg.Embedding.Backend == "" {
		cfg.Embedding.Backend = BackendMock
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 77
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Embedding.ImageTimeout == 0 {
		cfg.Embedding.ImageTimeout = 10 * time.Second
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "memory"
	}
	if cfg.Index.ReadyThreshold == 0 {
		cfg.Index.ReadyThreshold = 100
	}
	if cfg.Index.EmbedTimeout == 0 {
		cfg.Index.EmbedTimeout = 30 * time.Second
	}
	if cfg.Index.RateBurst == 0 {
		cfg.Index.RateBurst = 1
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}
