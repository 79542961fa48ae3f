// Command longevity serves and queries the nutrition question answering API.
package main

import (
	"os"

	_ "go.uber.org/automaxprocs"
)

func main() {
	os.Exit(execute(os.Args[1:]))
}
