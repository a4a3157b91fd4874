package temporalx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/OperativeX/processmind-sub001/internal/platform/envutil"
	"github.com/OperativeX/processmind-sub001/internal/platform/logger"
)

// NewClient dials Temporal per TEMPORAL_* env. Returns (nil, nil) when no
// address is configured, which the callers treat as "dispatch disabled".
// The dial retries with capped backoff because in compose-style deploys the
// Temporal frontend usually comes up after this process.
func NewClient(log *logger.Logger) (temporalsdkclient.Client, error) {
	cfg := LoadConfig()
	if !cfg.Enabled() {
		if log != nil {
			log.Warn("TEMPORAL_ADDRESS not set; Temporal dispatch disabled")
		}
		return nil, nil
	}

	opts := temporalsdkclient.Options{
		HostPort:  cfg.Address,
		Namespace: cfg.Namespace,
	}
	if cfg.ClientCertPath != "" || cfg.ClientKeyPath != "" || cfg.ClientCAPath != "" {
		tlsCfg, err := loadTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.ConnectionOptions.TLS = tlsCfg
	}

	dialTimeout := envutil.Duration("TEMPORAL_DIAL_TIMEOUT", 5*time.Second)
	maxWait := envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", 60*time.Second)
	backoff := envutil.Duration("TEMPORAL_DIAL_BACKOFF", 250*time.Millisecond)
	backoffMax := envutil.Duration("TEMPORAL_DIAL_BACKOFF_MAX", 5*time.Second)

	deadline := time.Now().Add(maxWait)
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
		c, err := temporalsdkclient.DialContext(ctx, opts)
		cancel()
		if err == nil {
			if log != nil && attempt > 1 {
				log.Info("Connected to Temporal",
					"address", cfg.Address,
					"namespace", cfg.Namespace,
					"attempts", attempt,
				)
			}
			return c, nil
		}
		if maxWait <= 0 || time.Now().After(deadline) {
			return nil, fmt.Errorf("temporal dial failed (address=%s namespace=%s): %w", cfg.Address, cfg.Namespace, err)
		}
		if log != nil {
			log.Warn("Temporal not reachable; retrying",
				"address", cfg.Address,
				"attempt", attempt,
				"error", err,
			)
		}
		time.Sleep(clampBackoff(backoff, backoffMax, attempt))
	}
}

func loadTLSConfig(cfg Config) (*tls.Config, error) {
	if cfg.ClientCertPath == "" || cfg.ClientKeyPath == "" {
		return nil, fmt.Errorf("temporal tls requires both cert and key paths")
	}
	cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load temporal client keypair: %w", err)
	}
	out := &tls.Config{Certificates: []tls.Certificate{cert}}
	if cfg.ClientCAPath != "" {
		pem, err := os.ReadFile(cfg.ClientCAPath)
		if err != nil {
			return nil, fmt.Errorf("read temporal ca bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("temporal ca bundle contains no certificates")
		}
		out.RootCAs = pool
	}
	return out, nil
}

func clampBackoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
