package main

import (
	"log"

	casper "github.com/knotx-labs/knotx-relayer/chains/casper/module"
	evm "github.com/knotx-labs/knotx-relayer/chains/evm/module"
	"github.com/knotx-labs/knotx-relayer/cmd"
)

func main() {
	if err := cmd.Execute(
		evm.Module{},
		casper.Module{},
	); err != nil {
		log.Fatal(err)
	}
}
