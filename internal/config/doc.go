// Package config provides configuration structures and utilities for unseen:
// defaults, the YAML configuration file, XDG paths and validation.
package config
