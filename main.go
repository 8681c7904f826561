package main

import "github.com/jjenkins/edinet/cmd"

func main() {
	cmd.Execute()
}
