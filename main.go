package main

import (
	"github.com/civet-run/civet/cmd"
)

func main() {
	cmd.Execute()
}
