// Command reharvest runs the adaptive web-page re-harvester.
package main

import "github.com/harvestnet/reharvest/internal/cli"

func main() {
	cli.Execute()
}
