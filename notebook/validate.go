package notebook

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError describes a single static defect found in a generated
// notebook cell.
type ValidationError struct {
	CellIndex int
	Message   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("cell %d: %s", e.CellIndex, e.Message)
}

// forbiddenKeywordArg names a (callee substring, keyword argument) pair that
// must never appear together in generated code, e.g. a bag-of-words
// featurizer accepting a random_state it cannot meaningfully honor.
type forbiddenKeywordArg struct {
	calleeContains string
	keyword        string
	reason         string
}

var forbiddenKeywordArgs = []forbiddenKeywordArg{
	{"CountVectorizer", "random_state", "CountVectorizer has no random_state parameter"},
	{"LabelEncoder", "random_state", "LabelEncoder has no random_state parameter"},
	{"train_test_split", "shuffle=False", "train_test_split must shuffle for a valid stratified split"},
}

var pyCallRegexp = regexp.MustCompile(`(\w+(?:\.\w+)*)\(([^()]*)\)`)

// Validate runs static checks against every code cell in doc: a best-effort
// syntax sanity check (Python source can't be parsed with go/parser, so this
// checks only for balanced brackets outside string literals) and the
// forbidden keyword-argument table.
func Validate(doc *Document) []ValidationError {
	var errs []ValidationError
	for i, cell := range doc.Cells {
		if cell.Type != CellCode {
			continue
		}
		if err := checkBalanced(cell.Source); err != nil {
			errs = append(errs, ValidationError{CellIndex: i, Message: err.Error()})
		}
		errs = append(errs, checkForbiddenArgs(i, cell.Source)...)
	}
	return errs
}

func checkBalanced(src string) error {
	depth := 0
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}
	opens := map[rune]bool{'(': true, '[': true, '{': true}
	var stack []rune
	inString := rune(0)
	escaped := false
	for _, r := range src {
		if inString != 0 {
			if escaped {
				escaped = false
				continue
			}
			if r == '\\' {
				escaped = true
				continue
			}
			if r == inString {
				inString = 0
			}
			continue
		}
		switch r {
		case '\'', '"':
			inString = r
		default:
			if opens[r] {
				stack = append(stack, r)
				depth++
			} else if open, ok := pairs[r]; ok {
				if depth == 0 || stack[len(stack)-1] != open {
					return fmt.Errorf("unbalanced bracket near %q", string(r))
				}
				stack = stack[:len(stack)-1]
				depth--
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced brackets (depth %d at end of cell)", depth)
	}
	return nil
}

func checkForbiddenArgs(cellIndex int, src string) []ValidationError {
	var errs []ValidationError
	matches := pyCallRegexp.FindAllStringSubmatch(src, -1)
	for _, m := range matches {
		callee, args := m[1], m[2]
		for _, f := range forbiddenKeywordArgs {
			if !strings.Contains(callee, f.calleeContains) {
				continue
			}
			if strings.Contains(args, f.keyword) {
				errs = append(errs, ValidationError{
					CellIndex: cellIndex,
					Message:   fmt.Sprintf("%s: %s", f.calleeContains, f.reason),
				})
			}
		}
	}
	return errs
}
