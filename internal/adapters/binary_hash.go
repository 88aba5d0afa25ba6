package adapters

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/zeebo/blake3"
)

// HashFile returns the hex blake3-256 digest of the file at path, stored
// as Binary.Checksum.
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("binary file not found").
			WithCause(err)
	}
	defer file.Close()
	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to hash binary").
			WithCause(err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
