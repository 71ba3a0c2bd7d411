// Global configuration for the index manager.
package config

// Name of the database.
const DBName = "btm"

// Prompt printed by REPL.
const Prompt = DBName + "> "

// The maximum number of pages that can be held by the buffer manager at once.
const MaxPagesInBuffer = 32

// Return prompt if requested, else "".
func GetPrompt(flag bool) string {
	if flag {
		return Prompt
	}
	return ""
}
