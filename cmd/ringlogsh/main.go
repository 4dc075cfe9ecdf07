package main

import (
	"github.com/robotalks/ringlog/pkg/cli/sh"
	"github.com/robotalks/ringlog/pkg/env"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	sh.Main()
}
