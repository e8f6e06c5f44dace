// Package storage holds uploaded document blobs.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
)

// DocumentStore is a blob store keyed by path. Locators returned by Put are
// opaque to callers and only meaningful to the store that issued them.
type DocumentStore interface {
	Put(ctx context.Context, key string, content []byte) (string, error)
	Get(ctx context.Context, locator string) ([]byte, error)
	Exists(ctx context.Context, locator string) (bool, error)
	// Delete reports false when the blob was already absent.
	Delete(ctx context.Context, locator string) (bool, error)
}

// ContentHash is the hex SHA-256 digest recorded as the document integrity hash.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// DocumentKey builds the storage key for an upload:
// permohonan/<applicationID>/<requirementID>/<documentID><ext>.
func DocumentKey(applicationID, requirementID, documentID, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return path.Join("permohonan", applicationID, requirementID, documentID+strings.ToLower(ext))
}

func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + key)
	if cleaned == "/" {
		return "", fmt.Errorf("empty storage key")
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}
