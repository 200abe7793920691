package main

import (
	"os"

	"github.com/NicolasHaas/posterchat/cmd/posterctl/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
