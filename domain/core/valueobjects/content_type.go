package valueobjects

import "fmt"

// ContentType identifies which of the three interchangeable content
// kinds an entity is. The zero value is invalid.
type ContentType string

const (
	ContentTypeBookmark ContentType = "bookmark"
	ContentTypeNote     ContentType = "note"
	ContentTypePrompt   ContentType = "prompt"
)

// AllContentTypes lists every valid content type in display order.
func AllContentTypes() []ContentType {
	return []ContentType{ContentTypeBookmark, ContentTypeNote, ContentTypePrompt}
}

// ParseContentType validates and converts a raw string
func ParseContentType(s string) (ContentType, error) {
	for _, t := range AllContentTypes() {
		if ContentType(s) == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown content type %q (valid: %v)", s, AllContentTypes())
}

// IsValid reports whether the content type is one of the known kinds
func (t ContentType) IsValid() bool {
	switch t {
	case ContentTypeBookmark, ContentTypeNote, ContentTypePrompt:
		return true
	}
	return false
}

// String implements fmt.Stringer
func (t ContentType) String() string {
	return string(t)
}

// DisplayRank returns the grouping order used by UI consumers:
// bookmarks first, then notes, then prompts.
func (t ContentType) DisplayRank() int {
	switch t {
	case ContentTypeBookmark:
		return 0
	case ContentTypeNote:
		return 1
	case ContentTypePrompt:
		return 2
	}
	return 3
}
