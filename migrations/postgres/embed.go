// Package migrations embeds SQL migration files.
package migrations

import "embed"

// CardsFS contains the directory schema (cards + issuer signing keys).
//
//go:embed cards/*.sql
var CardsFS embed.FS

// CardsDir is the directory within CardsFS where migrations live.
const CardsDir = "cards"
