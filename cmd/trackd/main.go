package main

import (
	"trackd.sh/cmd/trackd/cmd"
)

func main() {
	cmd.Execute()
}
