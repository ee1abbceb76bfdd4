//go:build linux

// kboverlay-ibus is the IBus engine process.
//
// Installation:
//  1. Copy the binary to /usr/local/bin/kboverlay-ibus
//  2. Run: kboverlay-ibus install
//  3. Restart IBus: ibus restart
//  4. Add "Keyboard Overlay" in ibus-setup or the desktop input settings
//
// ibus-daemon starts the engine with "run --ibus" when it is selected.
package main

import (
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
