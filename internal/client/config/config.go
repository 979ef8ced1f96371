package config

import "time"

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// S3 describes the bucket used by the s3 records backend.
type S3 struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

// Config holds runtime settings for the AdminVault console.
type Config struct {
	// IdentityEndpoint is host:port of the identity daemon.
	IdentityEndpoint string
	// SecondaryEndpoint serves the provisioning context used to create
	// accounts. Empty means IdentityEndpoint.
	SecondaryEndpoint string
	// StoreBackend selects the records store: memory, postgres or s3.
	StoreBackend string
	RecordsDSN   string
	S3           S3
	// DataDir holds the client database (login guard state and the
	// persisted refresh token).
	DataDir        string
	LogLevel       string
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.IdentityEndpoint = "127.0.0.1:50051"
	c.StoreBackend = BackendMemory
	c.RecordsDSN = ""
	c.S3 = S3{Region: "us-east-1"}
	c.DataDir = ".adminvault"
	c.LogLevel = "warn"
	c.RequestTimeout = 10 * time.Second
}

// ProvisioningEndpoint is the address of the provisioning context.
func (c *Config) ProvisioningEndpoint() string {
	if c.SecondaryEndpoint != "" {
		return c.SecondaryEndpoint
	}
	return c.IdentityEndpoint
}

// LoadConfig applies defaults, then the JSON file (if any), then flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
