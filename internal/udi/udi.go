// Package udi implements the parsing half of request preprocessing for the
// Universal Data Identifier: splitting a raw request path into its UDI
// segment and subpath, and decoding the UDI segment's dot-separated grammar.
//
// This package is pure and side-effect free; it knows nothing about
// cookies, oracles, or HTTP redirects. See internal/resolver for the part
// of the pipeline that consults those.
package udi

import "strings"

// storeIDLength is the fixed length of a valid storeId: 64 hex characters.
const storeIDLength = 64

// Identifier is a possibly-partial decoding of a UDI segment.
type Identifier struct {
	Chain    string
	StoreID  string
	RootHash string
}

// SplitPathQuery splits a raw originalUrl into its path and query string at
// the first '?'.
func SplitPathQuery(originalURL string) (path, query string) {
	if i := strings.IndexByte(originalURL, '?'); i >= 0 {
		return originalURL[:i], originalURL[i+1:]
	}
	return originalURL, ""
}

// Segments splits a path by '/' and drops empty segments (leading slash,
// trailing slash, repeated slashes).
func Segments(path string) []string {
	raw := strings.Split(path, "/")
	segs := make([]string, 0, len(raw))
	for _, s := range raw {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// RemoveDuplicatePathPart drops segments[1] when segments[0] == segments[1]
// and the shared value looks like a store identifier (length >= 64). This
// undoes the accidental path duplication introduced by some upstream
// rewriters. RemoveDuplicatePathPart is idempotent for the common
// single-duplication case: once segments[1] has been dropped, segments[0]
// no longer equals the new segments[1], so a second call is a no-op.
func RemoveDuplicatePathPart(segs []string) []string {
	if len(segs) >= 2 && segs[0] == segs[1] && len(segs[0]) >= storeIDLength {
		out := make([]string, 0, len(segs)-1)
		out = append(out, segs[0])
		out = append(out, segs[2:]...)
		return out
	}
	return segs
}

// SplitUDISegment returns the first segment (the UDI segment, after
// deduplication) and the remaining segments joined back into a subpath.
// If there are no segments, udiSegment is "" and subpath is "".
func SplitUDISegment(segs []string) (udiSegment, subpath string) {
	if len(segs) == 0 {
		return "", ""
	}
	udiSegment = segs[0]
	if len(segs) > 1 {
		subpath = "/" + strings.Join(segs[1:], "/")
	}
	return udiSegment, subpath
}

// IsValidStoreID reports whether s is exactly 64 hex characters.
func IsValidStoreID(s string) bool {
	if len(s) != storeIDLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// ParseUDISegment decodes the dot-separated grammar of a UDI segment.
//
// ok is false only for the single-part, non-64-length case: the segment is
// not a UDI at all and the caller should fold it back into the subpath and
// proceed with an empty storeId. Every other shape (including 4+ dot-parts,
// per the boundary behavior in the spec) returns ok=true with whatever
// fields could be decoded, possibly leaving StoreID invalid.
func ParseUDISegment(segment string) (id Identifier, ok bool) {
	parts := strings.Split(segment, ".")

	switch len(parts) {
	case 3:
		return Identifier{Chain: parts[0], StoreID: parts[1], RootHash: parts[2]}, true
	case 2:
		if len(parts[0]) == storeIDLength {
			return Identifier{StoreID: parts[0], RootHash: parts[1]}, true
		}
		return Identifier{Chain: parts[0], StoreID: parts[1]}, true
	case 1:
		if len(parts[0]) == storeIDLength {
			return Identifier{StoreID: parts[0]}, true
		}
		return Identifier{}, false
	default:
		// 4 or more dot-parts: not decoded by the grammar. The whole
		// segment is treated as the storeId, which will fail
		// IsValidStoreID and fall into the invalid-storeId path.
		return Identifier{StoreID: segment}, true
	}
}

// Canonical formats the redirect path for an identifier plus subpath as
// "/<chain>.<store>.<root><subpath>". An empty Chain or RootHash is left
// out together with its dot; no default chain is substituted.
func Canonical(id Identifier, subpath string) string {
	var b strings.Builder
	b.WriteByte('/')
	if id.Chain != "" {
		b.WriteString(id.Chain)
		b.WriteByte('.')
	}
	b.WriteString(id.StoreID)
	if id.RootHash != "" {
		b.WriteByte('.')
		b.WriteString(id.RootHash)
	}
	b.WriteString(subpath)
	return b.String()
}
