// Command birthmark fingerprints media and records it on a content
// authenticity ledger.
package main

import "github.com/birthmark-protocol/birthmark/internal/cli"

func main() {
	cli.Execute()
}
