package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const contentHashPrefix = "sha256:"

// ContentHash is the SHA-256 digest of some content, rendered as sha256:<hex>.
type ContentHash string

// HashBytes computes the content hash of data.
func HashBytes(data []byte) ContentHash {
	sum := sha256.Sum256(data)
	return ContentHash(contentHashPrefix + hex.EncodeToString(sum[:]))
}

// Valid reports whether h has the sha256:<64 lowercase hex> shape.
func (h ContentHash) Valid() bool {
	s := string(h)
	if !strings.HasPrefix(s, contentHashPrefix) {
		return false
	}
	digest := s[len(contentHashPrefix):]
	if len(digest) != sha256.Size*2 {
		return false
	}
	for _, r := range digest {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// Hex returns the digest without its algorithm prefix.
func (h ContentHash) Hex() string {
	return strings.TrimPrefix(string(h), contentHashPrefix)
}

func (h ContentHash) String() string { return string(h) }

// CommitHash is a version-control commit identifier supplied by the VCS.
type CommitHash string

func (h CommitHash) String() string { return string(h) }
