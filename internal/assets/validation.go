package assets

import (
	"fmt"
	"strings"
)

// maxAssetName bounds asset names; they are single path segments.
const maxAssetName = 64

// ValidateAssetName checks that an asset name is safe for use as a filename.
// Returns ErrInvalidAssetName if the name is empty, too long, or contains
// path separators or dots.
func ValidateAssetName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidAssetName)
	}
	if len(name) > maxAssetName {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidAssetName, maxAssetName)
	}
	if strings.ContainsAny(name, "/\\.") {
		return fmt.Errorf("%w: %q", ErrInvalidAssetName, name)
	}
	return nil
}
