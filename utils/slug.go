package utils

import "github.com/gosimple/slug"

// NodeIDFromName derives the stable node id from its display name,
// e.g. "Brooklyn Bridge" -> "brooklyn-bridge".
func NodeIDFromName(name string) string {
	return slug.Make(name)
}
