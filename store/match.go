package store

import (
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsFold matches rows whose column contains term as a plain substring,
// ignoring case in any script. LIKE wildcards in term match only themselves.
// A NULL column reads as empty.
func ContainsFold(column, term string) exp.Expression {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
	return goqu.L(`ulower(COALESCE(?, '')) LIKE ? ESCAPE '\'`, goqu.C(column), pattern)
}
