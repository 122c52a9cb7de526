package cfg

// Loader resolves the startup configuration from some backing source.
type Loader interface {
	Load() (*Config, error)
}
