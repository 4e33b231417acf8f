package files

import (
	"fmt"
	"strings"

	pkgerrors "github.com/skydrivehq/skydrive-backend/pkg/errors"
)

// LocatorKind names the vendor backend a stored object lives in.
type LocatorKind string

const (
	LocatorKindBlob   LocatorKind = "blob"
	LocatorKindStream LocatorKind = "stream"
)

// Locator identifies a stored object by backend plus backend-native reference.
// For blobs the ref is the storage-zone object path, for stream videos it is
// the vendor video id. The string form is what the files table persists.
type Locator struct {
	Kind LocatorKind
	Ref  string
}

// BlobLocator builds a locator for a storage-zone object path.
func BlobLocator(path string) Locator {
	return Locator{Kind: LocatorKindBlob, Ref: strings.TrimPrefix(path, "/")}
}

// StreamLocator builds a locator for a stream video id.
func StreamLocator(videoID string) Locator {
	return Locator{Kind: LocatorKindStream, Ref: videoID}
}

// ParseLocator decodes the persisted string form. Unknown prefixes and empty
// refs are rejected rather than passed through.
func ParseLocator(value string) (Locator, error) {
	kind, ref, found := strings.Cut(value, ":")
	if !found || ref == "" {
		return Locator{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("malformed storage locator %q", value))
	}
	switch LocatorKind(kind) {
	case LocatorKindBlob, LocatorKindStream:
		return Locator{Kind: LocatorKind(kind), Ref: ref}, nil
	default:
		return Locator{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown storage backend %q", kind))
	}
}

func (l Locator) String() string {
	return string(l.Kind) + ":" + l.Ref
}

func (l Locator) IsZero() bool {
	return l.Kind == "" && l.Ref == ""
}
