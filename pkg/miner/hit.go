package miner

import (
	"github.com/tinyland-inc/tgminer/pkg/config"
	"github.com/tinyland-inc/tgminer/pkg/identity"
	"github.com/tinyland-inc/tgminer/pkg/index"
)

// FormatHit renders an index record as a raw log line. Senders without an
// alias are shown as NO_ALIAS, followed by their handle when they have one.
func FormatHit(rec index.Record, layout string) string {
	if layout == "" {
		layout = config.DefaultTimestampFormat
	}

	alias := rec.Alias
	if alias == "" {
		alias = identity.NoAlias
	}
	sender := alias + handle(rec.Username)

	var toPart string
	if rec.ToAlias != "" || rec.ToUsername != "" {
		toPart = " to " + rec.ToAlias + handle(rec.ToUsername)
	}

	return FormatLine(rec.Timestamp.Format(layout), rec.Chat, rec.ToID, toPart,
		ShortEntry(sender, rec.Media, rec.Message))
}

func handle(username string) string {
	if username == "" {
		return ""
	}
	return " [@" + username + "]"
}
