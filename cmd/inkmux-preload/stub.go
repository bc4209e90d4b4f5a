//go:build !(linux && cgo)

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(os.Stderr, "inkmux-preload: the preload module needs linux and cgo")
	os.Exit(1)
}
