package main

import "oidbs/cmd"

func main() {
	cmd.Execute()
}
