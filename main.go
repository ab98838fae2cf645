package main

import "example.com/pdfmerge/cmd"

func main() {
	cmd.Execute()
}
