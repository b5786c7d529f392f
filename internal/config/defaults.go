package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 16 << 20
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Collection.Root == "" {
		cfg.Collection.Root = "/usr/local/var/kagami/data/images"
	}
	if cfg.Collection.Extensions == nil {
		cfg.Collection.Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp"}
	}
	if cfg.Storage.StorePath == "" {
		cfg.Storage.StorePath = "/usr/local/var/kagami/data/store/embeddings"
	}
	if cfg.Storage.Codec == "" {
		cfg.Storage.Codec = "zstd"
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/kagami/data/models/clip-vit-b32-vision.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.ImageSize == 0 {
		cfg.Embedding.ImageSize = 224
	}
	if cfg.Embedding.InputName == "" {
		cfg.Embedding.InputName = "pixel_values"
	}
	if cfg.Embedding.OutputName == "" {
		cfg.Embedding.OutputName = "image_embeds"
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1024
	}
	if cfg.Embedding.Fallback == "" {
		cfg.Embedding.Fallback = "hash"
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "flat"
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Ingest.FailurePolicy == "" {
		cfg.Ingest.FailurePolicy = "exclude"
	}
	if cfg.Ingest.RateLimit > 0 && cfg.Ingest.RateBurst == 0 {
		cfg.Ingest.RateBurst = 1
	}
	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = 5
	}
	if cfg.Search.MaxK == 0 {
		cfg.Search.MaxK = 50
	}
	if cfg.Search.SimilarityScale == 0 {
		cfg.Search.SimilarityScale = 50
	}
	if cfg.Search.EmbedTimeout == 0 {
		cfg.Search.EmbedTimeout = 10 * time.Second
	}
	if cfg.Search.DegradedPolicy == "" {
		cfg.Search.DegradedPolicy = "serve"
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	// Recursive defaults to true when unset (nil).
	if cfg.Watch.Enabled && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
