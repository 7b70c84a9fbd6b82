package main

import (
	"fmt"
	"os"

	"jarvisai/services/site/internal/openapi"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <site-openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := openapi.Load(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if err := openapi.Validate(doc); err != nil {
		exitErr(err)
	}
	fmt.Printf("OpenAPI check passed (%d paths).\n", len(doc.Paths))
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
