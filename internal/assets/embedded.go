package assets

import (
	"embed"
	"fmt"
)

//go:embed styles/*.css templates/*.html layouts/*.yaml
var files embed.FS

// EmbeddedLoader loads the built-in assets.
type EmbeddedLoader struct{}

// NewEmbeddedLoader creates an EmbeddedLoader.
func NewEmbeddedLoader() *EmbeddedLoader {
	return &EmbeddedLoader{}
}

// LoadStyle implements AssetLoader.
func (e *EmbeddedLoader) LoadStyle(name string) (string, error) {
	b, err := e.load(styleKind, name)
	return string(b), err
}

// LoadTemplate implements AssetLoader.
func (e *EmbeddedLoader) LoadTemplate(name string) (string, error) {
	b, err := e.load(templateKind, name)
	return string(b), err
}

// LoadLayout implements AssetLoader.
func (e *EmbeddedLoader) LoadLayout(name string) ([]byte, error) {
	return e.load(layoutKind, name)
}

func (e *EmbeddedLoader) load(k kind, name string) ([]byte, error) {
	if err := ValidateAssetName(name); err != nil {
		return nil, err
	}
	content, err := files.ReadFile(k.dir + "/" + name + k.ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", k.notFound, name)
	}
	return content, nil
}

// Compile-time interface check.
var _ AssetLoader = (*EmbeddedLoader)(nil)
