// Package config loads and validates motionvec configuration.
//
// Defaults match the command line defaults, so a config file only needs the
// keys it changes. Files are read only from an explicit path; nothing is
// discovered from the environment or the home directory.
package config
