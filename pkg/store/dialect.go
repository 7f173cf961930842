// Package store is the bridge's persistence layer: the durable ingestion
// queue (C4), the per-participant session store (C5), and the DAOs for the
// remaining entities in the data model (Tenant, SocialConnection,
// WebhookConfig, AIProjectBinding, Conversation, Message, DeadLetter).
package store

import (
	"fmt"
	"strings"

	"github.com/CRT-AUTO/bridge-core/pkg/database"
)

// dialect renders the same logical query against either backend's
// placeholder syntax: lib/pq requires numbered $1, $2…; modernc.org/sqlite
// accepts plain ?.
type dialect struct {
	backend database.Backend
}

func newDialect(backend database.Backend) dialect {
	return dialect{backend: backend}
}

// ph builds a comma-separated placeholder list starting at position start
// (1-indexed) for count values, e.g. ph(1, 3) -> "$1, $2, $3" or "?, ?, ?".
func (d dialect) ph(start, count int) string {
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		parts[i] = d.one(start + i)
	}
	return strings.Join(parts, ", ")
}

func (d dialect) one(position int) string {
	if d.backend == database.BackendPostgres {
		return fmt.Sprintf("$%d", position)
	}
	return "?"
}

// rewrite replaces sequential $N placeholders in a query literal written
// in Postgres style with the target backend's style. Query text in this
// package is always authored using $1, $2… and passed through rewrite so
// the source stays readable regardless of backend.
func (d dialect) rewrite(query string) string {
	if d.backend == database.BackendPostgres {
		return query
	}
	var b strings.Builder
	i := 0
	for i < len(query) {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			b.WriteByte('?')
			i = j
			continue
		}
		b.WriteByte(query[i])
		i++
	}
	return b.String()
}
