// internal/license/keygen.go
package license

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/keygen-sh/keygen-go/v3"
	"go.uber.org/zap"
)

var (
	ErrMissingKey = errors.New("license key is required")
	ErrShortKey   = errors.New("license key is too short")
	ErrExpired    = errors.New("license has expired")
)

const minKeyLength = 8

// Config holds the Keygen account. An empty config selects basic validation.
type Config struct {
	AccountID    string `mapstructure:"account_id"`
	ProductID    string `mapstructure:"product_id"`
	ProductToken string `mapstructure:"product_token"`
}

func (c Config) keygenEnabled() bool {
	return c.AccountID != "" && c.ProductID != "" && c.ProductToken != ""
}

// Validator checks a license key before trading starts.
type Validator interface {
	Validate(ctx context.Context, key string) error
}

// NewValidator returns a Keygen validator when cfg is complete, otherwise a basic one.
func NewValidator(cfg Config, logger *zap.Logger) Validator {
	if cfg.keygenEnabled() {
		return NewKeygenValidator(cfg, logger)
	}
	return BasicValidator{logger: logger.Named("license")}
}

// BasicValidator only checks the key shape.
type BasicValidator struct {
	logger *zap.Logger
}

func (v BasicValidator) Validate(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if v.logger != nil {
		v.logger.Info("License validated (basic mode)")
	}
	return nil
}

func checkKey(key string) error {
	switch {
	case key == "":
		return ErrMissingKey
	case len(key) < minKeyLength:
		return ErrShortKey
	}
	return nil
}

// keygen-go keeps its credentials in package globals.
var keygenMu sync.Mutex

// KeygenValidator validates and activates keys against Keygen.sh.
type KeygenValidator struct {
	cfg         Config
	logger      *zap.Logger
	fingerprint func() (string, error)
	validate    func(ctx context.Context, fingerprints ...string) (*keygen.License, error)
	activate    func(ctx context.Context, l *keygen.License, fingerprint string) (*keygen.Machine, error)
}

func NewKeygenValidator(cfg Config, logger *zap.Logger) *KeygenValidator {
	return &KeygenValidator{
		cfg:         cfg,
		logger:      logger.Named("license"),
		fingerprint: Fingerprint,
		validate:    keygen.Validate,
		activate: func(ctx context.Context, l *keygen.License, fingerprint string) (*keygen.Machine, error) {
			return l.Activate(ctx, fingerprint)
		},
	}
}

// Validate validates key for this machine, activating it on first use.
func (kv *KeygenValidator) Validate(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	kv.logger.Info("Validating license " + key[:minKeyLength] + "...")

	fingerprint, err := kv.fingerprint()
	if err != nil {
		return fmt.Errorf("failed to generate machine fingerprint: %w", err)
	}

	keygenMu.Lock()
	defer keygenMu.Unlock()
	keygen.Account = kv.cfg.AccountID
	keygen.Product = kv.cfg.ProductID
	keygen.Token = kv.cfg.ProductToken
	keygen.LicenseKey = key

	lic, err := kv.validate(ctx, fingerprint)
	switch {
	case errors.Is(err, keygen.ErrLicenseNotActivated):
		kv.logger.Info("License not activated, attempting activation")
		machine, err := kv.activate(ctx, lic, fingerprint)
		if err != nil {
			return fmt.Errorf("failed to activate license: %w", err)
		}
		kv.logger.Info("License activated", zap.String("machine_id", machine.ID))
	case errors.Is(err, keygen.ErrLicenseExpired):
		return ErrExpired
	case err != nil:
		return fmt.Errorf("license validation failed: %w", err)
	}
	if lic == nil {
		return errors.New("license not found")
	}

	kv.logger.Info("License validated", zap.String("license_id", lic.ID))
	return nil
}

// KeepAlive revalidates every interval until ctx ends. Failures are logged only.
func (kv *KeygenValidator) KeepAlive(ctx context.Context, key string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := kv.Validate(ctx, key); err != nil {
				kv.logger.Warn("License heartbeat failed", zap.Error(err))
			}
		}
	}
}

// Fingerprint hashes the hostname, the first hardware address and the OS.
func Fingerprint() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", err
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}

	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || len(iface.HardwareAddr) == 0 {
			continue
		}
		macs = append(macs, iface.HardwareAddr.String())
	}
	sort.Strings(macs)
	mac := "none"
	if len(macs) > 0 {
		mac = macs[0]
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-%s", hostname, mac, runtime.GOOS)))
	return fmt.Sprintf("%x", sum), nil
}
