package enums

import "fmt"

// FileKind separates regular files from folders in the drive tree.
type FileKind string

const (
	FileKindFile   FileKind = "file"
	FileKindFolder FileKind = "folder"
)

var validFileKinds = []FileKind{
	FileKindFile,
	FileKindFolder,
}

// String returns the literal string for the kind.
func (f FileKind) String() string {
	return string(f)
}

// IsValid reports whether the kind is known.
func (f FileKind) IsValid() bool {
	for _, candidate := range validFileKinds {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFileKind converts raw input into a FileKind.
func ParseFileKind(value string) (FileKind, error) {
	for _, candidate := range validFileKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid file kind %q", value)
}
