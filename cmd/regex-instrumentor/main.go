package main

import (
	"os"

	"github.com/smith-xyz/go-regex-observer/cmd/regex-instrumentor/internal"
)

func main() {
	os.Exit(internal.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
