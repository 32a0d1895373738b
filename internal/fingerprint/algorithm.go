package fingerprint

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"

	"github.com/birthmark-protocol/birthmark/pkg/errclass"
	"github.com/birthmark-protocol/birthmark/pkg/model"
)

// hashers is the fixed set of supported digests. Every entry must return a
// fresh incremental hasher.
var hashers = map[model.Algorithm]func() hash.Hash{
	model.AlgorithmSHA256:   sha256.New,
	model.AlgorithmSHA512:   sha512.New,
	model.AlgorithmSHA3_256: sha3.New256,
	model.AlgorithmSHA3_512: sha3.New512,
	model.AlgorithmBLAKE2b256: func() hash.Hash {
		h, _ := blake2b.New256(nil) // only fails for an oversized key
		return h
	},
	model.AlgorithmBLAKE2b512: func() hash.Hash {
		h, _ := blake2b.New512(nil)
		return h
	},
	model.AlgorithmBLAKE3: func() hash.Hash { return blake3.New() },
}

// ParseAlgorithm resolves a user-supplied name. Matching ignores case and
// surrounding space; an empty name selects the default.
func ParseAlgorithm(name string) (model.Algorithm, error) {
	n := model.Algorithm(strings.ToLower(strings.TrimSpace(name)))
	if n == "" {
		return model.DefaultAlgorithm, nil
	}
	if _, ok := hashers[n]; !ok {
		return "", errclass.ErrUnsupportedAlgorithm.WithMessagef(
			"unsupported algorithm %q (supported: %s)", name, strings.Join(Supported(), ", "))
	}
	return n, nil
}

// Supported lists the algorithm names in sorted order.
func Supported() []string {
	names := make([]string, 0, len(hashers))
	for a := range hashers {
		names = append(names, string(a))
	}
	sort.Strings(names)
	return names
}

// DigestSize returns the digest length in bytes, or 0 if unsupported.
func DigestSize(alg model.Algorithm) int {
	newHash, ok := hashers[alg]
	if !ok {
		return 0
	}
	return newHash().Size()
}

func newHasher(alg model.Algorithm) (hash.Hash, model.Algorithm, error) {
	a, err := ParseAlgorithm(string(alg))
	if err != nil {
		return nil, "", err
	}
	return hashers[a](), a, nil
}
