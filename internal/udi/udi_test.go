package udi

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hex64 = strings.Repeat("a", 64)
var hex64b = strings.Repeat("b", 64)

func TestSplitPathQuery(t *testing.T) {
	path, query := SplitPathQuery("/chia." + hex64 + ".ff/foo?a=1&b=2")
	assert.Equal(t, "/chia."+hex64+".ff/foo", path)
	assert.Equal(t, "a=1&b=2", query)

	path, query = SplitPathQuery("/foo/bar")
	assert.Equal(t, "/foo/bar", path)
	assert.Equal(t, "", query)
}

func TestRemoveDuplicatePathPart(t *testing.T) {
	segs := Segments("/" + hex64 + "/" + hex64 + "/foo")
	deduped := RemoveDuplicatePathPart(segs)
	require.Len(t, deduped, 2)
	assert.Equal(t, hex64, deduped[0])
	assert.Equal(t, "foo", deduped[1])

	// Idempotent: a second pass over the already-deduped list is a no-op.
	again := RemoveDuplicatePathPart(deduped)
	assert.Equal(t, deduped, again)
}

func TestRemoveDuplicatePathPartShortSegmentsUntouched(t *testing.T) {
	segs := Segments("/abc/abc/foo")
	assert.Equal(t, segs, RemoveDuplicatePathPart(segs))
}

func TestSplitUDISegment(t *testing.T) {
	udiSeg, subpath := SplitUDISegment(Segments("/chia." + hex64 + ".ff/foo/bar"))
	assert.Equal(t, "chia."+hex64+".ff", udiSeg)
	assert.Equal(t, "/foo/bar", subpath)

	udiSeg, subpath = SplitUDISegment(Segments("/" + hex64))
	assert.Equal(t, hex64, udiSeg)
	assert.Equal(t, "", subpath)
}

func TestIsValidStoreID(t *testing.T) {
	assert.True(t, IsValidStoreID(hex64))
	assert.False(t, IsValidStoreID(hex64[:63]))
	assert.False(t, IsValidStoreID(hex64+"a"))
	assert.False(t, IsValidStoreID(strings.Repeat("z", 64)))
}

func TestParseUDISegmentThreeParts(t *testing.T) {
	id, ok := ParseUDISegment("chia." + hex64 + ".ff")
	require.True(t, ok)
	assert.Equal(t, Identifier{Chain: "chia", StoreID: hex64, RootHash: "ff"}, id)
}

func TestParseUDISegmentTwoPartsStoreRoot(t *testing.T) {
	id, ok := ParseUDISegment(hex64 + ".ff")
	require.True(t, ok)
	assert.Equal(t, Identifier{StoreID: hex64, RootHash: "ff"}, id)
}

func TestParseUDISegmentTwoPartsChainStore(t *testing.T) {
	id, ok := ParseUDISegment("chia." + hex64)
	require.True(t, ok)
	assert.Equal(t, Identifier{Chain: "chia", StoreID: hex64}, id)
}

func TestParseUDISegmentOnePartStoreOnly(t *testing.T) {
	id, ok := ParseUDISegment(hex64)
	require.True(t, ok)
	assert.Equal(t, Identifier{StoreID: hex64}, id)
}

func TestParseUDISegmentNotAUDI(t *testing.T) {
	id, ok := ParseUDISegment("bogus")
	assert.False(t, ok)
	assert.Equal(t, Identifier{}, id)
}

func TestParseUDISegmentFourPlusParts(t *testing.T) {
	seg := "a.b.c.d"
	id, ok := ParseUDISegment(seg)
	require.True(t, ok)
	assert.Equal(t, seg, id.StoreID)
	assert.False(t, IsValidStoreID(id.StoreID))
}

func TestCanonicalRoundTrip(t *testing.T) {
	original := "/chia." + hex64 + "." + hex64b + "/p"
	path, query := SplitPathQuery(original + "?q=1")
	segs := RemoveDuplicatePathPart(Segments(path))
	udiSeg, subpath := SplitUDISegment(segs)
	id, ok := ParseUDISegment(udiSeg)
	require.True(t, ok)
	require.Equal(t, Identifier{Chain: "chia", StoreID: hex64, RootHash: hex64b}, id)
	assert.Equal(t, original, Canonical(id, subpath))
	_ = query
}
