package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/adminvault/internal/flagx"
)

// parseFlags overlays cfg with command-line flags. Only the flags listed
// here are looked at; everything else in os.Args is ignored.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-e", "-s", "-d", "-b", "-p", "-l", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.IdentityEndpoint, "a", cfg.IdentityEndpoint, "address and port of the identity daemon")
	fs.StringVar(&cfg.SecondaryEndpoint, "e", cfg.SecondaryEndpoint, "address of the provisioning identity endpoint (defaults to -a)")
	fs.StringVar(&cfg.StoreBackend, "s", cfg.StoreBackend, "records backend: memory, postgres or s3")
	fs.StringVar(&cfg.RecordsDSN, "d", cfg.RecordsDSN, "postgres DSN for the records backend")
	fs.StringVar(&cfg.S3.Bucket, "b", cfg.S3.Bucket, "S3 bucket for the records backend")
	fs.StringVar(&cfg.DataDir, "p", cfg.DataDir, "client data directory")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
