// Package fileid derives storage keys and checksums for uploaded files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"path/filepath"
	"strings"
)

// KeyPrefix is the object store folder for uploaded documents.
const KeyPrefix = "pdfs/"

// Checksum returns the hex SHA-256 of content.
func Checksum(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

// ObjectKey returns the object store key for an uploaded filename. Directory
// components are stripped so a client cannot choose the folder.
func ObjectKey(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = path.Base(name)
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return KeyPrefix + name
}

// PathDocID returns a stable id for a file on disk. Same path always yields the same id.
func PathDocID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return "file:" + hex.EncodeToString(hash[:])
}
