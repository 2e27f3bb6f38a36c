// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/scopehub/scopehub/cmd/scopehub"

func main() {
	cmd.Execute()
}
