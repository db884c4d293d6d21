package main

import "longdoc-translator/cmd"

func main() {
	cmd.Execute()
}
