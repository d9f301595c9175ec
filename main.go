// SPDX-License-Identifier: GPL-3.0-or-later
package main

import (
	"fmt"
	"os"
	"os/user"

	"peephole/internal/peephole"
	"peephole/repl"
)

func main() {
	currentUser, err := user.Current()
	if err != nil {
		fmt.Printf("Error getting current user: %v\n", err)
		return
	}

	engine, err := peephole.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Welcome to the peephole REPL, %s!\n", currentUser.Username)
	fmt.Println("Enter a function; it is optimized once its closing } is read.")
	repl.Start(os.Stdin, os.Stdout, engine)
}
