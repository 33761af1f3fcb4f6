/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/eocert/console/cmd"

func main() {
	cmd.Execute()
}
