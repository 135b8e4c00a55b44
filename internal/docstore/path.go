package docstore

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanPath validates a document path and returns it in Unicode NFC, so
// canonically equivalent spellings address the same document.
func CleanPath(path string) (string, error) {
	path = norm.NFC.String(path)
	if _, _, err := SplitPath(path); err != nil {
		return "", err
	}
	return path, nil
}

// SplitPath splits a document path into its collection and id.
// A document path has at least two segments and no empty segments.
func SplitPath(path string) (collection, id string, err error) {
	segs := strings.Split(path, "/")
	if len(segs) < 2 {
		return "", "", fmt.Errorf("invalid document path %q: need collection/id", path)
	}
	for _, seg := range segs {
		if seg == "" {
			return "", "", fmt.Errorf("invalid document path %q: empty segment", path)
		}
	}
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

// CleanCollection validates a collection path and returns it in NFC.
func CleanCollection(collection string) (string, error) {
	if collection == "" {
		return "", fmt.Errorf("invalid collection path: empty")
	}
	collection = norm.NFC.String(collection)
	for _, seg := range strings.Split(collection, "/") {
		if seg == "" {
			return "", fmt.Errorf("invalid collection path %q: empty segment", collection)
		}
	}
	return collection, nil
}

// Join builds a document path from a collection and an id.
func Join(collection, id string) string {
	return collection + "/" + id
}
