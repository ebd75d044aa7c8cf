// Command obsctl drives OBS the way chat does, without chat.
//
// Usage:
//
//	obsctl [flags] <command> [args]
//
// Commands:
//
//	run        - parse and apply one chat command as the broadcaster
//	items      - list the scene items of a scene
//	filter     - print a filter's settings
//	say        - ask a running co-pilot to voice a line
//	characters - check the character sources exist in OBS
//
// OBS_ADDR and OBS_PASSWORD provide the flag defaults.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
