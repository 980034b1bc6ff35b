package assets

// AssetLoader defines the contract for loading claim assets by name,
// without extension.
type AssetLoader interface {
	// LoadStyle loads a CSS style. Returns ErrStyleNotFound if it doesn't exist.
	LoadStyle(name string) (string, error)

	// LoadTemplate loads an HTML page template. Returns ErrTemplateNotFound
	// if it doesn't exist.
	LoadTemplate(name string) (string, error)

	// LoadLayout loads a YAML cell layout. Returns ErrLayoutNotFound if it
	// doesn't exist.
	LoadLayout(name string) ([]byte, error)
}

// kind locates one asset type on disk and in the embedded filesystem.
type kind struct {
	dir      string
	ext      string
	notFound error
}

var (
	styleKind    = kind{dir: "styles", ext: ".css", notFound: ErrStyleNotFound}
	templateKind = kind{dir: "templates", ext: ".html", notFound: ErrTemplateNotFound}
	layoutKind   = kind{dir: "layouts", ext: ".yaml", notFound: ErrLayoutNotFound}
)
