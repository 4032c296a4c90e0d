// Package file loads docpipe configuration and prompt templates from the
// local filesystem.
//
// Adapters:
//   - Config: TOML or YAML configuration with .env and environment overrides
//   - PromptStore: user-editable prompt templates with embedded defaults
package file
