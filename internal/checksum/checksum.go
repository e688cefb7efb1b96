// Package checksum computes and verifies blob digests.
//
// The algorithm is always taken from the digest being checked so stores mixing
// sha256, sha384 and sha512 blobs are handled alike.
package checksum

import (
	_ "crypto/sha256" // register sha256
	_ "crypto/sha512" // register sha384 and sha512
	"io"
	"os"

	"github.com/mdouchement/modelshuttle/internal/storeerr"
	"github.com/opencontainers/go-digest"
)

// Parse validates s as `<algorithm>:<hex>`.
func Parse(s string) (digest.Digest, error) {
	d, err := digest.Parse(s)
	if err != nil {
		return "", storeerr.New(storeerr.Corrupt, "parse digest", s, err)
	}
	return d, nil
}

// Compute hashes r with the given algorithm and returns the digest and the number of bytes read.
func Compute(r io.Reader, algorithm digest.Algorithm) (digest.Digest, int64, error) {
	if !algorithm.Available() {
		return "", 0, storeerr.Errorf(storeerr.Corrupt, "compute digest", string(algorithm), "unsupported algorithm")
	}

	digester := algorithm.Digester()
	n, err := io.Copy(digester.Hash(), r)
	if err != nil {
		return "", n, storeerr.FromOS("compute digest", string(algorithm), err)
	}
	return digester.Digest(), n, nil
}

// Verify recomputes the digest of the file at path and compares it with expected.
func Verify(path string, expected digest.Digest) error {
	if err := expected.Validate(); err != nil {
		return storeerr.New(storeerr.Corrupt, "verify", string(expected), err)
	}

	f, err := os.Open(path)
	if err != nil {
		return storeerr.FromOS("verify", string(expected), err)
	}
	defer f.Close()

	actual, _, err := Compute(f, expected.Algorithm())
	if err != nil {
		return err
	}
	if actual != expected {
		return storeerr.Errorf(storeerr.Integrity, "verify", string(expected), "content hashes to %s", actual)
	}
	return nil
}

// NewVerifyingReader returns a reader that fails with an error of the given kind
// at EOF when the content read does not match expected.
// A negative size disables the length check.
func NewVerifyingReader(r io.Reader, expected digest.Digest, size int64, kind storeerr.Kind) io.Reader {
	return &verifyingReader{
		r:        r,
		expected: expected,
		verifier: expected.Verifier(),
		size:     size,
		kind:     kind,
	}
}

type verifyingReader struct {
	r        io.Reader
	expected digest.Digest
	verifier digest.Verifier
	size     int64
	read     int64
	kind     storeerr.Kind
}

func (r *verifyingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.read += int64(n)
		r.verifier.Write(p[:n])
	}

	if err == io.EOF {
		if r.size >= 0 && r.read != r.size {
			return n, storeerr.Errorf(r.kind, "verify", string(r.expected), "read %d bytes, expected %d", r.read, r.size)
		}
		if !r.verifier.Verified() {
			return n, storeerr.Errorf(r.kind, "verify", string(r.expected), "content does not match digest")
		}
	}
	return n, err
}
