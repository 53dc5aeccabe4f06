package repositories

import (
	"strconv"
	"strings"
)

// predicate assembles a WHERE clause from an ordered list of typed parts
// with bound arguments. Expressions use ? markers that build rewrites to
// positional $n placeholders, so user-controlled values never appear in
// the SQL text and clause precedence is fixed by insertion order.
type predicate struct {
	clauses []string
	args    []any
}

func (p *predicate) add(expr string, args ...any) {
	p.clauses = append(p.clauses, expr)
	p.args = append(p.args, args...)
}

// build returns the assembled WHERE clause (empty when no parts were
// added) and the bound arguments in placeholder order.
func (p *predicate) build() (string, []any) {
	if len(p.clauses) == 0 {
		return "", nil
	}

	var b strings.Builder
	b.WriteString("WHERE ")
	n := 0
	for i, clause := range p.clauses {
		if i > 0 {
			b.WriteString(" AND ")
		}
		for _, r := range clause {
			if r == '?' {
				n++
				b.WriteByte('$')
				b.WriteString(strconv.Itoa(n))
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String(), p.args
}

// next returns the positional index for the first placeholder appended
// after the predicate's own arguments, for LIMIT/OFFSET style suffixes.
func (p *predicate) next() int {
	return len(p.args) + 1
}
