package dap_debugger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/fansqz/cli-debugger/debugger"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
)

// declarationTypes 函数体中可以停下的声明语句
var declarationTypes = map[string]bool{
	"short_var_declaration": true,
	"var_declaration":       true,
	"const_declaration":     true,
}

// ResolveLines 返回源文件中可以设置断点的位置，按行排序
func ResolveLines(ctx context.Context, file string) ([]debugger.SourceLocation, error) {
	source, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var lines []int
	if strings.HasSuffix(file, ".go") {
		lines, err = ParseExecutableLines(ctx, source)
		if err != nil {
			return nil, err
		}
	} else {
		lines = nonBlankLines(source)
	}
	answer := make([]debugger.SourceLocation, len(lines))
	for i, line := range lines {
		answer[i] = debugger.NewSourceLocation(file, line)
	}
	return answer, nil
}

// ParseExecutableLines 解析Go源码，返回函数体中语句所在的行（从1开始）
func ParseExecutableLines(ctx context.Context, source []byte) ([]int, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("解析失败: %v", err)
	}
	defer tree.Close()

	lines := treeset.NewWithIntComparator()
	cursor := sitter.NewTreeCursor(tree.RootNode())
	defer cursor.Close()

	var traverse func(inBlock bool)
	traverse = func(inBlock bool) {
		node := cursor.CurrentNode()
		if inBlock && isExecutable(node.Type()) {
			lines.Add(int(node.StartPoint().Row + 1))
		}
		if node.Type() == "block" {
			inBlock = true
		}
		if cursor.GoToFirstChild() {
			for {
				traverse(inBlock)
				if !cursor.GoToNextSibling() {
					break
				}
			}
			cursor.GoToParent()
		}
	}
	traverse(false)

	answer := make([]int, 0, lines.Size())
	for _, v := range lines.Values() {
		answer = append(answer, v.(int))
	}
	return answer, nil
}

func isExecutable(nodeType string) bool {
	if nodeType == "empty_statement" {
		return false
	}
	return strings.HasSuffix(nodeType, "_statement") || declarationTypes[nodeType]
}

func nonBlankLines(source []byte) []int {
	var answer []int
	for i, line := range strings.Split(string(source), "\n") {
		if strings.TrimSpace(line) != "" {
			answer = append(answer, i+1)
		}
	}
	return answer
}
