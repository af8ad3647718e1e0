// Package config loads, validates and materializes the engine
// configuration: resources with their mappings, attribute schemas,
// password policy and runtime settings.
package config
