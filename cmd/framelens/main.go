// Command framelens highlights framing language in transcripts and serves the
// highlighter and the transcription pipeline over HTTP.
package main

import (
	"fmt"
	"os"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "framelens: %v\n", err)
		os.Exit(1)
	}
}
