package main

import (
	"github.com/mchmarny/wilson/pkg/cli"
)

func main() {
	cli.Execute()
}
