package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/adminvault/internal/flagx"
	"github.com/dmitrijs2005/adminvault/internal/timex"
)

type jsonS3 struct {
	Bucket       string `json:"bucket"`
	Region       string `json:"region"`
	BaseEndpoint string `json:"base_endpoint"`
	AccessKey    string `json:"access_key"`
	SecretKey    string `json:"secret_key"`
}

// JsonConfig is the on-disk shape of the console configuration. Absent
// fields keep the value they had before the file was read.
type JsonConfig struct {
	IdentityEndpoint  string          `json:"identity_endpoint"`
	SecondaryEndpoint string          `json:"secondary_endpoint"`
	StoreBackend      string          `json:"store_backend"`
	RecordsDSN        string          `json:"records_dsn"`
	S3                *jsonS3         `json:"s3"`
	DataDir           string          `json:"data_dir"`
	LogLevel          string          `json:"log_level"`
	RequestTimeout    *timex.Duration `json:"request_timeout"`
}

// parseJson overlays cfg with the file named by -c/-config. It panics on
// read or decode errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setIf(&cfg.IdentityEndpoint, jc.IdentityEndpoint)
	setIf(&cfg.SecondaryEndpoint, jc.SecondaryEndpoint)
	setIf(&cfg.StoreBackend, jc.StoreBackend)
	setIf(&cfg.RecordsDSN, jc.RecordsDSN)
	setIf(&cfg.DataDir, jc.DataDir)
	setIf(&cfg.LogLevel, jc.LogLevel)
	if jc.S3 != nil {
		setIf(&cfg.S3.Bucket, jc.S3.Bucket)
		setIf(&cfg.S3.Region, jc.S3.Region)
		setIf(&cfg.S3.BaseEndpoint, jc.S3.BaseEndpoint)
		setIf(&cfg.S3.AccessKey, jc.S3.AccessKey)
		setIf(&cfg.S3.SecretKey, jc.S3.SecretKey)
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
