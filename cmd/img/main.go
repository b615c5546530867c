// Command img generates images from text prompts with the Volcengine
// Jimeng AI API, manages project configuration and series definitions,
// and exports results into platform asset sets.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// Credentials commonly live in a project .env file.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
