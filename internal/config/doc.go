// Package config defines the application's configuration structures and
// loading logic. Configuration comes from environment variables (prefixed
// with LOCALBROWSER_) layered over an optional config.yaml file, with
// defaults for every setting and struct-tag validation on the result.
package config
