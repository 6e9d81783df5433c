// Package config defines the eventq configuration and loads it.
//
// Configuration is layered, later layers overriding earlier ones:
//
//	defaults      Default()
//	file          eventq.toml or eventq.yaml
//	environment   EVENTQ_SECTION_KEY=value
//
// Durations are written as Go duration strings ("25ms"), category masks as
// lists of category names.
//
// # Sub-packages
//
//   - loader: TOML, YAML and environment sources merged as nested maps
//   - watcher: fsnotify based reload of the configuration file
package config
