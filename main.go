// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/berth-run/berth/cmd/berth"

func main() {
	cmd.Execute()
}
