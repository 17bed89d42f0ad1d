// Package config loads cachet's YAML configuration.
//
// ${VAR_NAME} references are expanded from the environment before parsing,
// so secrets like the Slack bot token stay out of the file. Duration values
// are written as Go duration strings ("30s", "24h") and parsed into
// time.Duration fields after unmarshaling.
package config
