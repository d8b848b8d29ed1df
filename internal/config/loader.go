package config

// LoadFromEnv builds the configuration for the collector and importer
// binaries from process environment variables. Dev builds first load local
// overrides from an env file; production builds compile that step out.
func LoadFromEnv() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	return Load(FromEnviron())
}
