package main

import "github.com/dafibh/mediaforge/mediaforge-backend/internal/cli"

func main() {
	cli.Main()
}
