// Package listing interprets transcoded ListBucketResult documents as folder
// listings.
//
// A store has no real folders. A folder is a key (or common prefix) ending in
// the folder delimiter; every other key is a file.
package listing

import (
	"strings"

	"github.com/3leaps/nimbusdir/pkg/transcode"
)

// DefaultDelimiter separates folder levels in keys.
const DefaultDelimiter = "/"

// Options controls how entries are classified and reported.
type Options struct {
	// Delimiter marks folder entries. Empty uses DefaultDelimiter.
	// It is independent of the delimiter sent with the list request.
	Delimiter string

	// PrefixLen, when positive, strips that many leading bytes from every
	// entry. Entries no longer than PrefixLen are dropped.
	PrefixLen int
}

// Listing is the folder view of one list response.
type Listing struct {
	// Folders holds common prefixes first, then folder marker keys.
	Folders []string

	// Files holds every key that does not end with the delimiter.
	Files []string

	// IsTruncated reports that the store holds more entries.
	IsTruncated bool

	// NextContinuationToken resumes the listing when IsTruncated is set.
	NextContinuationToken string
}

// Empty reports whether the listing has no entries.
func (l Listing) Empty() bool {
	return len(l.Folders) == 0 && len(l.Files) == 0
}

// Decode extracts folders and files from a transcoded ListBucketResult.
//
// Shape problems never fail: a missing or unexpected root yields an empty
// Listing. CommonPrefixes and Contents may each be a single element or an
// array; both are handled.
func Decode(v *transcode.Value, opts Options) Listing {
	delim := opts.Delimiter
	if delim == "" {
		delim = DefaultDelimiter
	}

	var out Listing
	root := v.Field("ListBucketResult")
	if !root.IsMapping() {
		return out
	}

	for _, cp := range root.Field("CommonPrefixes").List() {
		if p, ok := relative(cp.Field("Prefix").Text(), opts.PrefixLen); ok {
			out.Folders = append(out.Folders, p)
		}
	}

	for _, obj := range root.Field("Contents").List() {
		key := obj.Field("Key").Text()
		isFolder := strings.HasSuffix(key, delim)
		key, ok := relative(key, opts.PrefixLen)
		if !ok {
			continue
		}
		if isFolder {
			out.Folders = append(out.Folders, key)
		} else {
			out.Files = append(out.Files, key)
		}
	}

	out.IsTruncated = root.Field("IsTruncated").Text() == "true"
	out.NextContinuationToken = root.Field("NextContinuationToken").Text()
	return out
}

// DecodeBytes transcodes a raw list response and decodes it.
// It fails only when data is not well-formed markup.
func DecodeBytes(data []byte, opts Options) (Listing, error) {
	v, err := transcode.Transcode(data)
	if err != nil {
		return Listing{}, err
	}
	return Decode(v, opts), nil
}

func relative(entry string, prefixLen int) (string, bool) {
	if entry == "" {
		return "", false
	}
	if prefixLen <= 0 {
		return entry, true
	}
	if len(entry) <= prefixLen {
		return "", false
	}
	return entry[prefixLen:], true
}
