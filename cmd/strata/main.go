package main

import "github.com/stratadb/strata/pkg/cli"

func main() {
	cli.Execute(cli.Options{
		Name:        "strata",
		Description: "Storage adapter toolkit: health checks and schema migrations",
	})
}
