// sheetd is a networked reactive spreadsheet server.
package main

import (
	"os"

	"github.com/vogtb/sheetd/packages/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
