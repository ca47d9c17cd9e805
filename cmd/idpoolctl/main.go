// main.go - idpoolctl entrypoint
package main

import "github.com/id-pointer/id-pointer-pool-go/cmd/idpoolctl/cli"

func main() {
	cli.Execute()
}
