// Package migrations embeds SQL migration files.
package migrations

import "embed"

// EmulatorFS contains the migrations of the emulator account store.
//
//go:embed emulator/*.sql
var EmulatorFS embed.FS

// EmulatorDir is the directory within EmulatorFS where migrations live.
const EmulatorDir = "emulator"
