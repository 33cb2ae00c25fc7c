/*
hostlist.go expands Slurm hostlist notation into concrete node names.
*/
package hostlist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MalformedHostlistError indicates an expression that cannot be interpreted
// as a hostlist at all: more than one bracket group, or a bracket group
// with no tokens inside it.
type MalformedHostlistError struct {
	Expr string
}

func (e *MalformedHostlistError) Error() string {
	return fmt.Sprintf("malformed hostlist expression: %q", e.Expr)
}

// RangeParseError indicates a range token inside the bracket group that
// could not be expanded.
type RangeParseError struct {
	Token  string
	Reason string
}

func (e *RangeParseError) Error() string {
	return fmt.Sprintf("bad range token %q: %s", e.Token, e.Reason)
}

var bracketPattern = regexp.MustCompile(`\[[^\]]*\]`)

// Expand turns a Slurm hostlist expression like "node[01-03,05]" into the
// concrete node names it denotes, preserving left-to-right order. An
// expression without brackets names exactly one node. Range bounds with
// leading zeros keep their width in the expanded ids, and tokens that are
// not a simple "start-end" pair pass through verbatim so non-numeric node
// ids survive.
func Expand(expr string) ([]string, error) {
	groups := bracketPattern.FindAllString(expr, -1)
	if len(groups) > 1 {
		return nil, &MalformedHostlistError{Expr: expr}
	}

	if len(groups) == 0 {
		if strings.ContainsAny(expr, "[]") {
			// Unbalanced brackets never name a real node.
			return nil, &MalformedHostlistError{Expr: expr}
		}
		return []string{expr}, nil
	}

	group := groups[0]
	idx := strings.Index(expr, group)
	prefix := expr[:idx]
	suffix := expr[idx+len(group):]
	rangeList := group[1 : len(group)-1]
	if rangeList == "" {
		return nil, &MalformedHostlistError{Expr: expr}
	}

	var nodes []string
	for _, token := range strings.Split(rangeList, ",") {
		ids, err := expandToken(token)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			nodes = append(nodes, prefix+id+suffix)
		}
	}
	return nodes, nil
}

// expandToken expands one comma-group of the range list. Only a token with
// a single interior hyphen is treated as an integer range; everything else
// is a literal id.
func expandToken(token string) ([]string, error) {
	if strings.Count(token, "-") != 1 {
		return []string{token}, nil
	}
	dash := strings.Index(token, "-")
	if dash == 0 || dash == len(token)-1 {
		return []string{token}, nil
	}

	startStr, endStr := token[:dash], token[dash+1:]
	start, err := strconv.Atoi(startStr)
	if err != nil {
		return nil, &RangeParseError{Token: token, Reason: "start is not an integer"}
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return nil, &RangeParseError{Token: token, Reason: "end is not an integer"}
	}
	if start > end {
		return nil, &RangeParseError{Token: token, Reason: "start is greater than end"}
	}

	// Zero-padded bounds (e.g. "01-03") keep their width.
	width := 0
	if strings.HasPrefix(startStr, "0") && len(startStr) > 1 {
		width = len(startStr)
	}

	ids := make([]string, 0, end-start+1)
	for v := start; v <= end; v++ {
		ids = append(ids, fmt.Sprintf("%0*d", width, v))
	}
	return ids, nil
}
