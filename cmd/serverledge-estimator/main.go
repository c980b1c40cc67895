package main

import "github.com/grussorusso/serverledge-estimator/internal/cli"

func main() {
	cli.Init()
}
