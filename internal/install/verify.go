package install

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Checksum returns the xxhash64 of the file at path as 16 lowercase hex digits, and its size.
func Checksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer func() { _ = f.Close() }()

	h := xxhash.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}

	return formatSum(h.Sum64()), n, nil
}

// ChecksumBytes returns the xxhash64 of b in the same format as Checksum.
func ChecksumBytes(b []byte) string {
	return formatSum(xxhash.Sum64(b))
}

func formatSum(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

// sameChecksum compares checksums ignoring case and an optional 0x prefix.
func sameChecksum(got, want string) bool {
	normalize := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		s = strings.TrimPrefix(s, "0x")
		if v, err := strconv.ParseUint(s, 16, 64); err == nil {
			return formatSum(v)
		}
		return s
	}

	return normalize(got) == normalize(want)
}
