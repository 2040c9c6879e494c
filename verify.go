package fcopy

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// HashAlgo specifies the digest used to verify a staged copy before commit.
type HashAlgo string

const (
	// HashNone disables verification
	HashNone HashAlgo = ""
	// HashMD5 uses MD5 (128 bits)
	HashMD5 HashAlgo = "md5"
	// HashSHA256 uses SHA-256 (256 bits)
	HashSHA256 HashAlgo = "sha256"
	// HashSHA512 uses SHA-512 (512 bits)
	HashSHA512 HashAlgo = "sha512"
	// HashXXHash uses xxHash (64 bits, very fast)
	HashXXHash HashAlgo = "xxhash"
)

func (a HashAlgo) valid() bool {
	switch a {
	case HashNone, HashMD5, HashSHA256, HashSHA512, HashXXHash:
		return true
	}
	return false
}

func (a HashAlgo) new() (hash.Hash, error) {
	switch a {
	case HashMD5:
		return md5.New(), nil
	case HashSHA256:
		return sha256.New(), nil
	case HashSHA512:
		return sha512.New(), nil
	case HashXXHash:
		return xxhash.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %q", a)
	}
}

// ParseHashAlgo converts a name such as "xxhash" to a HashAlgo. "none" and the
// empty string disable verification.
func ParseHashAlgo(name string) (HashAlgo, error) {
	if name == "none" {
		return HashNone, nil
	}
	a := HashAlgo(name)
	if !a.valid() {
		return HashNone, invalidArg("unsupported hash algorithm: %q", name)
	}
	return a, nil
}

// ChecksumMismatchError reports a staged copy whose digest differs from the
// source's. It is retried like any other transient failure.
type ChecksumMismatchError struct {
	Algo   HashAlgo
	Source string
	Staged string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("%s mismatch between %s and staged copy %s", e.Algo, e.Source, e.Staged)
}

// fileDigest hashes the file at path, checking ctx between buffer reads.
func fileDigest(ctx context.Context, algo HashAlgo, path string, buf []byte) ([]byte, error) {
	h, err := algo.new()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	for {
		if ctx.Err() != nil {
			return nil, interrupted(ctx)
		}
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return h.Sum(nil), nil
}

// verifyStaged compares the digests of src and staged.
func verifyStaged(ctx context.Context, algo HashAlgo, src, staged string, buf []byte) error {
	want, err := fileDigest(ctx, algo, src, buf)
	if err != nil {
		return fmt.Errorf("hash source: %w", err)
	}
	got, err := fileDigest(ctx, algo, staged, buf)
	if err != nil {
		return fmt.Errorf("hash staged copy: %w", err)
	}
	if !bytes.Equal(want, got) {
		return &ChecksumMismatchError{Algo: algo, Source: src, Staged: staged}
	}
	return nil
}
