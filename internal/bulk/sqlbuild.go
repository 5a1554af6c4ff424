package bulk

// sqlbuild.go is the only place SQL text is assembled. Identifiers are
// always quoted through pgx.Identifier; values never appear in SQL text.

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
)

// DefaultStagingPrefix starts every staging table name.
const DefaultStagingPrefix = "tmp"

// maxIdentifierLen is PostgreSQL's NAMEDATALEN-1.
const maxIdentifierLen = 63

var stagingSeq atomic.Uint64

func quoteIdent(parts ...string) string {
	return pgx.Identifier(parts).Sanitize()
}

func columnNames(cols []ColumnMapping) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Column
	}
	return names
}

// stagingName returns a session-unique temp table name derived from the
// target table: <prefix>_<table>_<unix nanos>_<sequence>. The table part
// is shortened so the name fits in a PostgreSQL identifier.
func stagingName(prefix, table string, now time.Time) string {
	if prefix == "" {
		prefix = DefaultStagingPrefix
	}
	suffix := "_" + strconv.FormatInt(now.UnixNano(), 10) + "_" + strconv.FormatUint(stagingSeq.Add(1), 10)

	base := sanitizeNamePart(table)
	room := maxIdentifierLen - len(prefix) - 1 - len(suffix)
	if room < 0 {
		room = 0
	}
	if len(base) > room {
		base = base[:room]
	}

	name := prefix + "_" + base + suffix
	if len(name) > maxIdentifierLen {
		name = name[len(name)-maxIdentifierLen:]
	}
	return name
}

// sanitizeNamePart lowercases s and keeps only [a-z0-9_].
func sanitizeNamePart(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stagingDDL creates a temp table with the target's columns and defaults
// that is dropped when the enclosing transaction commits.
func stagingDDL(staging string, target pgx.Identifier) string {
	return fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		quoteIdent(staging), target.Sanitize())
}

// mergeSQL builds the set-based update from staging into target. Every
// non-key column in cols is assigned; every key column joins.
func mergeSQL(target pgx.Identifier, staging string, cols []ColumnMapping) (string, error) {
	var sets, joins []string
	for _, c := range cols {
		if c.PrimaryKey {
			joins = append(joins, fmt.Sprintf("target.%s = source.%s", c.QuotedColumn, c.QuotedColumn))
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = source.%s", c.QuotedColumn, c.QuotedColumn))
	}

	if len(joins) == 0 {
		return "", ErrNoPrimaryKey
	}
	if len(sets) == 0 {
		return "", ErrNoUpdateColumns
	}

	return fmt.Sprintf("UPDATE %s AS target SET %s FROM %s AS source WHERE %s",
		target.Sanitize(),
		strings.Join(sets, ", "),
		quoteIdent(staging),
		strings.Join(joins, " AND "),
	), nil
}
