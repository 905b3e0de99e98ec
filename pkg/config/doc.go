/*
Package config loads controller configuration.

Sources are merged in precedence order: built-in defaults, an optional
YAML file (ctos.yaml by default), CTOS_* environment variables, and
finally command-line flags applied by the CLI layer. A .env file in the
working directory is honored for development convenience.
*/
package config
