package assets

// Names of the built-in assets.
const (
	DefaultStyleName    = "claim"
	DefaultTemplateName = "claim"
	DefaultLayoutName   = "claim"
)

// defaultLoader is the package-level embedded loader.
var defaultLoader = NewEmbeddedLoader()

// LoadStyle loads a CSS file by name using the default embedded loader.
func LoadStyle(name string) (string, error) {
	return defaultLoader.LoadStyle(name)
}

// LoadTemplate loads an HTML page template by name using the default
// embedded loader.
func LoadTemplate(name string) (string, error) {
	return defaultLoader.LoadTemplate(name)
}

// LoadLayout loads a YAML cell layout by name using the default embedded
// loader.
func LoadLayout(name string) ([]byte, error) {
	return defaultLoader.LoadLayout(name)
}
