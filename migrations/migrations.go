// Package migrations embeds the SQL schema files read by golang-migrate
// through the iofs source driver.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
