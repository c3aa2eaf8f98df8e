// Command cnstream runs a pipeline topology described by a config file,
// driving it with synthetic frames (cmd/cnstream/internal/demo) since
// concrete source adapters and processing stages are out of scope
// (spec.md §1). See cmd/cnstream/internal/app for the command itself.
package main

import (
	"fmt"
	"os"

	"github.com/cnstream-go/cnstream/cmd/cnstream/internal/app"
)

func main() {
	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
