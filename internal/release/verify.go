package release

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	// HashSHA3 is the default content-address algorithm.
	HashSHA3 = "sha3-256"
	// HashSHA256 is accepted for records written as "sha256:<hex>".
	HashSHA256 = "sha256"

	verifyChunkSize = 64 * 1024
)

// VerifyProgressFunc receives the percentage of the file hashed so far.
type VerifyProgressFunc func(percent float64)

// Verifier checks downloaded archives against their expected content hash.
type Verifier struct {
	chunkSize int
}

// NewVerifier creates a new verifier
func NewVerifier() *Verifier {
	return &Verifier{chunkSize: verifyChunkSize}
}

// Verify hashes the file at path and compares it with expected.
//
// expected is a hex digest, optionally prefixed with its algorithm
// ("sha3-256:" or "sha256:"); comparison ignores case. A mismatch returns
// (false, nil); the error is reserved for read failures. onProgress is purely
// informational and may be nil.
func (v *Verifier) Verify(path, expected string, onProgress VerifyProgressFunc) (bool, error) {
	algo, want := splitHash(expected)

	actual, err := v.hashFile(path, algo, onProgress)
	if err != nil {
		return false, err
	}

	return strings.EqualFold(actual, want), nil
}

// HashFile returns the hex digest of path using algo (HashSHA3 or HashSHA256).
func (v *Verifier) HashFile(path, algo string) (string, error) {
	return v.hashFile(path, algo, nil)
}

func (v *Verifier) hashFile(path, algo string, onProgress VerifyProgressFunc) (string, error) {
	hasher, err := newHasher(algo)
	if err != nil {
		return "", err
	}

	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	total := info.Size()

	buf := make([]byte, v.chunkSize)
	var read int64
	for {
		n, err := file.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			read += int64(n)
			if onProgress != nil && total > 0 {
				onProgress(float64(read) * 100 / float64(total))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
	}

	if onProgress != nil && total == 0 {
		onProgress(100)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func newHasher(algo string) (hash.Hash, error) {
	switch algo {
	case HashSHA3:
		return sha3.New256(), nil
	case HashSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
}

// splitHash separates an optional "algo:" prefix from the hex digest.
func splitHash(expected string) (algo, digest string) {
	expected = strings.TrimSpace(expected)
	if prefix, rest, ok := strings.Cut(expected, ":"); ok {
		switch strings.ToLower(prefix) {
		case HashSHA256:
			return HashSHA256, strings.TrimSpace(rest)
		case HashSHA3, "sha3":
			return HashSHA3, strings.TrimSpace(rest)
		}
	}
	return HashSHA3, expected
}
