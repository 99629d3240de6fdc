// Tokenwatch accounts LLM token usage per conversation, per user and globally,
// and alerts administrators when configured ceilings are crossed.
//
// Usage:
//
//	# Run the HTTP service (config/<ENV>.yaml)
//	tokenwatch serve
//
//	# Use an explicit YAML or TOML config
//	tokenwatch serve --config /etc/tokenwatch.toml
//
//	# Inspect or edit the persisted counters while the service is stopped
//	tokenwatch sessions
//	tokenwatch export --format csv --output usage.csv
//	tokenwatch reset group_123
package main

func main() {
	Execute()
}
