package main

import (
	"github.com/cardtable/cardtable-go/internal/cli"
)

func main() {
	cli.Execute()
}
