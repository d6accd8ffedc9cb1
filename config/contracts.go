package config

// Validator is implemented by every configuration struct.
type Validator interface {
	Validate() error
}

// Flags is implemented by command line flag structs carrying a config file path.
type Flags interface {
	// GetConfigPath returns the path of the YAML file to load.
	GetConfigPath() string

	// IsExplicitConfigPath reports whether the path was given on the command line
	// instead of being the built-in default.
	IsExplicitConfigPath() bool
}
