// Command ariesk is the thin CLI front end over the AriesK approximate
// nucleotide-search engine: building rotation/grid/contig databases and
// driving sequence, contig, and server-mode search. Everything here is a
// wrapper around the library packages at the repository root and under
// bloomgrid/, store/, seedextend/, and server/; the CLI itself owns no
// search logic.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
