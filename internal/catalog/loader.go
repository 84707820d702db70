package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork

	"github.com/thrive-launcher/launcher/internal/logging"
)

const (
	// SignatureSuffix is appended to the manifest location to find its detached signature.
	SignatureSuffix = ".sig"
	// maxManifestSize bounds how much of a remote manifest is read.
	maxManifestSize = 8 << 20
)

// Loader retrieves a manifest from a URL or a local file and parses it.
type Loader struct {
	client      *http.Client
	userAgent   string
	keyringPath string
	logger      logging.Logger
}

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	// KeyringPath, when set, requires a valid detached signature made by a key
	// in this OpenPGP keyring (armored or binary).
	KeyringPath string
	UserAgent   string
	Timeout     time.Duration
	Logger      logging.Logger
}

// NewLoader creates a manifest loader.
func NewLoader(opts LoaderOptions) *Loader {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Loader{
		client:      &http.Client{Timeout: opts.Timeout},
		userAgent:   opts.UserAgent,
		keyringPath: opts.KeyringPath,
		logger:      logging.OrNoop(opts.Logger),
	}
}

// Load reads the manifest at source and returns the parsed catalog.
// source is either an http(s) URL or a filesystem path.
func (l *Loader) Load(ctx context.Context, source string) (*Catalog, error) {
	data, err := l.read(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	if l.keyringPath != "" {
		sig, err := l.read(ctx, source+SignatureSuffix)
		if err != nil {
			return nil, fmt.Errorf("%w: read signature: %v", ErrSignatureInvalid, err)
		}
		if err := verifySignature(l.keyringPath, data, sig); err != nil {
			return nil, err
		}
		l.logger.Debug("manifest signature verified", "source", source)
	}

	cat, err := Parse(data)
	if err != nil {
		return nil, err
	}

	l.logger.Info("version catalog loaded", "source", source, "versions", len(cat.versions))
	return cat, nil
}

func (l *Loader) read(ctx context.Context, source string) ([]byte, error) {
	if !isRemote(source) {
		return os.ReadFile(source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > maxManifestSize {
		return nil, fmt.Errorf("manifest larger than %d bytes", maxManifestSize)
	}
	return data, nil
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// verifySignature checks sig (armored or binary) over data against the keyring.
func verifySignature(keyringPath string, data, sig []byte) error {
	keyring, err := loadKeyring(keyringPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	_, err = openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(sig), nil)
	if err != nil {
		_, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(data), bytes.NewReader(sig), nil)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

// loadKeyring reads an armored or binary OpenPGP keyring.
func loadKeyring(path string) (openpgp.EntityList, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}

	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(raw))
	if err != nil {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}

	if len(keyring) == 0 {
		return nil, fmt.Errorf("keyring is empty")
	}
	return keyring, nil
}
