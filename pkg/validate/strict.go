package validate

import (
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// reject flags nodes the grammar accepts but the compiler refuses.
func reject(node *sitter.Node, errs *[]SyntaxError, depth int) {
	if depth > 1000 {
		return
	}

	msg := ""
	switch node.Type() {
	case "print_statement":
		if !parenthesizedCall(node) {
			msg = "Missing parentheses in call to 'print'. Did you mean print(...)?"
		}
	case "exec_statement":
		if !parenthesizedCall(node) {
			msg = "Missing parentheses in call to 'exec'. Did you mean exec(...)?"
		}
	case "return_statement":
		if !insideFunction(node) {
			msg = "'return' outside function"
		}
	case "yield":
		if !insideFunction(node) {
			msg = "'yield' outside function"
		}
	case "await":
		if !insideFunction(node) {
			msg = "'await' outside function"
		}
	case "break_statement":
		if !insideLoop(node) {
			msg = "'break' outside loop"
		}
	case "continue_statement":
		if !insideLoop(node) {
			msg = "'continue' not properly in loop"
		}
	}
	if msg != "" {
		point := node.StartPoint()
		*errs = append(*errs, SyntaxError{Line: int(point.Row) + 1, Column: int(point.Column) + 1, Message: msg})
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child != nil {
			reject(child, errs, depth+1)
		}
	}
}

// parenthesizedCall reports whether a print or exec statement is really a
// call whose whole argument list sits in one pair of parentheses.
func parenthesizedCall(node *sitter.Node) bool {
	if node.NamedChildCount() != 1 {
		return false
	}
	switch node.NamedChild(0).Type() {
	case "parenthesized_expression", "tuple":
		return true
	}
	return false
}

func insideFunction(node *sitter.Node) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "function_definition", "lambda":
			return true
		case "class_definition":
			return false
		}
	}
	return false
}

func insideLoop(node *sitter.Node) bool {
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "for_statement", "while_statement":
			return true
		case "function_definition", "class_definition", "lambda":
			return false
		}
	}
	return false
}

// checkIndent requires every statement that starts a line to sit at the same
// column as its siblings, and module-level statements at column zero.
func checkIndent(node *sitter.Node, content []byte, errs *[]SyntaxError) {
	var walk func(n *sitter.Node, depth int)
	walk = func(n *sitter.Node, depth int) {
		if depth > 1000 {
			return
		}
		if t := n.Type(); t == "module" || t == "block" {
			checkBlock(n, content, t == "module", errs)
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if child := n.NamedChild(i); child != nil {
				walk(child, depth+1)
			}
		}
	}
	walk(node, 0)
}

func checkBlock(block *sitter.Node, content []byte, module bool, errs *[]SyntaxError) {
	expected := -1
	if module {
		expected = 0
	}
	var prev *sitter.Node
	for i := 0; i < int(block.NamedChildCount()); i++ {
		stmt := block.NamedChild(i)
		if stmt == nil || stmt.Type() == "comment" || !startsLine(stmt, content) {
			continue
		}
		col := int(stmt.StartPoint().Column)
		last := prev
		prev = stmt
		if expected < 0 {
			expected = col
			continue
		}
		if col == expected {
			continue
		}
		msg := "unexpected indent"
		if col < expected || (last != nil && last.EndPoint().Row > last.StartPoint().Row) {
			msg = "unindent does not match any outer indentation level"
		}
		point := stmt.StartPoint()
		*errs = append(*errs, SyntaxError{Line: int(point.Row) + 1, Column: col + 1, Message: msg})
	}
}

func startsLine(node *sitter.Node, content []byte) bool {
	start := int(node.StartByte())
	if start > len(content) {
		return false
	}
	for i := start - 1; i >= 0 && content[i] != '\n'; i-- {
		if content[i] != ' ' && content[i] != '\t' && content[i] != '\f' {
			return false
		}
	}
	return true
}

func sortErrors(errs []SyntaxError) {
	sort.SliceStable(errs, func(i, j int) bool {
		if errs[i].Line != errs[j].Line {
			return errs[i].Line < errs[j].Line
		}
		return errs[i].Column < errs[j].Column
	})
}
