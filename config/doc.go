// Package config loads kbsearch settings from a YAML file and the
// environment.
//
// Settings missing from the file keep the values of Default. The
// embedding API key is never stored in the file; it is read from the
// environment variable named by embedder.api_key_env, which LoadEnv can
// populate from a .env file.
package config
