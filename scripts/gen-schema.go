//go:build ignore

package main

import (
	"fmt"
	"os"

	"github.com/apirunner/scenario/pkg/scenarioschema"
)

func main() {
	data, err := scenarioschema.Generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile("schemas/scenario-v1.json", data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "write: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("wrote schemas/scenario-v1.json")
}
