// Package confloader loads configuration with koanf.
//
// Sources, later overriding earlier:
//
//  1. Defaults held by the target struct
//  2. A YAML configuration file
//  3. TOKGATE_ environment variables
//  4. Overrides passed by the caller, e.g. the -addr flag
//
// Watcher reports changes of the configuration file via fsnotify, so that
// reloadable settings (log level, gateway allow-list) can be applied at
// runtime.
package confloader
