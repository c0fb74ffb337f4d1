// Package output renders tokgate-cli results as tables, JSON or YAML.
//
//   - formatter.go: Formatter interface and factory
//   - table.go: tabwriter tables built from tagged structs
//   - json.go: indented JSON
//   - yaml.go: YAML keyed by json field names
package output
