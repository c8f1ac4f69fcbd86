// Package migrations embeds the ordered SQL schema files applied by
// guardctl migrate.
package migrations

import "embed"

// FS holds the *.sql files; names sort in application order.
//
//go:embed *.sql
var FS embed.FS
