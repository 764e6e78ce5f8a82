// Command parsec is a project scheduling engine: dependency validation,
// critical path analysis, resource leveling, conflict detection, baselines
// and earned value reporting.
package main

import "github.com/papapumpkin/parsec/cmd"

func main() {
	cmd.Execute()
}
