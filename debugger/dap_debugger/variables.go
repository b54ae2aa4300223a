package dap_debugger

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/fansqz/cli-debugger/debugger"
	e "github.com/fansqz/cli-debugger/error"
	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
)

var (
	// pointerPattern 指针变量的值，例如 (*main.Node)(0xc000010000) 或 0xc000010000
	pointerPattern = regexp.MustCompile(`^(?:\(\*[^()]*\)\()?(0x[0-9a-fA-F]+)\)?$`)
	indexPattern   = regexp.MustCompile(`^\[\d+\]$`)
)

func variableKey(frameID int, name string) string {
	return fmt.Sprintf("%d/%s", frameID, name)
}

// VisibleVariables 栈帧中所有非expensive作用域里的变量
func (d *DAPDebugger) VisibleVariables(ctx context.Context, frame debugger.Frame) ([]debugger.LocalVariable, error) {
	logrus.Infof("[DAPDebugger] VisibleVariables frame %d", frame.ID)
	req := &dap.ScopesRequest{Request: newRequest("scopes"), Arguments: dap.ScopesArguments{FrameId: frame.ID}}
	resp, err := call[*dap.ScopesResponse](ctx, d.client, req)
	if err != nil {
		return nil, err
	}
	var answer []debugger.LocalVariable
	for _, scope := range resp.Body.Scopes {
		if scope.Expensive || scope.VariablesReference == 0 {
			continue
		}
		variables, err := d.children(ctx, scope.VariablesReference)
		if err != nil {
			return nil, err
		}
		for _, v := range variables {
			key := variableKey(frame.ID, v.Name)
			d.variables[key] = v
			answer = append(answer, debugger.LocalVariable{Name: v.Name, Type: v.Type, Reference: key})
		}
	}
	return answer, nil
}

func (d *DAPDebugger) ValueOf(ctx context.Context, frame debugger.Frame, variable debugger.LocalVariable) (debugger.Value, error) {
	v, ok := d.variables[variable.Reference]
	if !ok {
		return nil, fmt.Errorf("variable %s in frame %d: %w", variable.Name, frame.ID, e.ErrNoFrame)
	}
	return d.buildValue(ctx, v, "", 1, map[string]*debugger.Object{})
}

func (d *DAPDebugger) children(ctx context.Context, reference int) ([]dap.Variable, error) {
	req := &dap.VariablesRequest{Request: newRequest("variables"), Arguments: dap.VariablesArguments{VariablesReference: reference}}
	resp, err := call[*dap.VariablesResponse](ctx, d.client, req)
	if err != nil {
		return nil, err
	}
	return resp.Body.Variables, nil
}

// buildValue 按层展开变量，超过MaxDepth的部分使用适配器给出的文本
// built 记录已经创建的对象，同一个地址只创建一次，环由格式化时检测
func (d *DAPDebugger) buildValue(ctx context.Context, v dap.Variable, identity string, depth int,
	built map[string]*debugger.Object) (debugger.Value, error) {
	if v.VariablesReference == 0 || depth > d.option.MaxDepth {
		return debugger.Primitive{Text: v.Value}, nil
	}
	if identity == "" {
		identity = identityOf(v)
	}
	if obj, ok := built[identity]; ok && identity != "" {
		return obj, nil
	}
	children, err := d.children(ctx, v.VariablesReference)
	if err != nil {
		return nil, err
	}
	// 指针只有一个匿名子节点，展开后使用指针的地址作为标识
	if len(children) == 1 && isDereference(v, children[0]) {
		child := children[0]
		if child.Type == "" {
			child.Type = strings.TrimPrefix(v.Type, "*")
		}
		return d.buildValue(ctx, child, identity, depth, built)
	}
	if v.IndexedVariables > 0 || isIndexed(children) {
		array := &debugger.Array{Elements: make([]debugger.Value, 0, len(children))}
		for _, child := range children {
			value, err := d.buildValue(ctx, child, "", depth+1, built)
			if err != nil {
				return nil, err
			}
			array.Elements = append(array.Elements, value)
		}
		return array, nil
	}
	obj := &debugger.Object{TypeName: typeName(v), Identity: identity}
	if identity != "" {
		built[identity] = obj
	}
	for _, child := range children {
		value, err := d.buildValue(ctx, child, "", depth+1, built)
		if err != nil {
			return nil, err
		}
		obj.Fields = append(obj.Fields, debugger.Field{Name: child.Name, Type: child.Type, Value: value})
	}
	return obj, nil
}

// identityOf 优先使用memoryReference，否则只取指针变量自身的地址
// 结构体的值中可能包含字段的地址，不能作为标识
func identityOf(v dap.Variable) string {
	if v.MemoryReference != "" {
		return v.MemoryReference
	}
	if !strings.HasPrefix(v.Type, "*") {
		return ""
	}
	match := pointerPattern.FindStringSubmatch(v.Value)
	if match == nil {
		return ""
	}
	return match[1]
}

func isDereference(parent dap.Variable, child dap.Variable) bool {
	if child.Name == "" {
		return true
	}
	return strings.HasPrefix(parent.Type, "*") && child.Name == "*"+parent.Name
}

func isIndexed(children []dap.Variable) bool {
	if len(children) == 0 {
		return false
	}
	for _, child := range children {
		if !indexPattern.MatchString(child.Name) {
			return false
		}
	}
	return true
}

func typeName(v dap.Variable) string {
	if v.Type != "" {
		return v.Type
	}
	return "object"
}
