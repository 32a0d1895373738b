package model

// Algorithm names a supported fingerprint digest.
type Algorithm string

const (
	AlgorithmSHA256     Algorithm = "sha256"
	AlgorithmSHA512     Algorithm = "sha512"
	AlgorithmSHA3_256   Algorithm = "sha3-256"
	AlgorithmSHA3_512   Algorithm = "sha3-512"
	AlgorithmBLAKE2b256 Algorithm = "blake2b-256"
	AlgorithmBLAKE2b512 Algorithm = "blake2b-512"
	AlgorithmBLAKE3     Algorithm = "blake3"
)

// DefaultAlgorithm is used when a caller does not name one.
const DefaultAlgorithm = AlgorithmSHA256

// HashValue is a digest stored as a lower-case hex string.
type HashValue string

// SidecarFormat selects how a Record is attached next to a media file.
type SidecarFormat string

const (
	SidecarJSON SidecarFormat = "json"
	SidecarCBOR SidecarFormat = "cbor"
	SidecarNone SidecarFormat = "none"
)
