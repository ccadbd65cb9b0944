package config

// Context carries the loaded settings through command setup. Commands and
// services receive it rather than reaching for package-level state.
type Context struct {
	Settings *Settings
}
