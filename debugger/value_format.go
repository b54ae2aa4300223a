package debugger

import (
	"strings"

	"github.com/emirpasic/gods/sets/hashset"
)

const nullValue = "null"

// FormatValue 把变量的值渲染成一行文本
// 数组: Array [ 1 , 2 , 3 ]
// 对象: Node { int id = 1; Node next = <cycle Node>; }
func FormatValue(value Value) string {
	var sb strings.Builder
	formatValue(&sb, value, hashset.New())
	return sb.String()
}

// FormatVariable "<type> <name> = <value>"
func FormatVariable(variable LocalVariable, value Value) string {
	return variable.Type + " " + variable.Name + " = " + FormatValue(value)
}

// open 保存正在渲染的对象的Identity，再次遇到时输出环标记
func formatValue(sb *strings.Builder, value Value, open *hashset.Set) {
	switch v := value.(type) {
	case nil:
		sb.WriteString(nullValue)
	case Primitive:
		sb.WriteString(v.Text)
	case *Primitive:
		if v == nil {
			sb.WriteString(nullValue)
			return
		}
		sb.WriteString(v.Text)
	case *Array:
		if v == nil {
			sb.WriteString(nullValue)
			return
		}
		sb.WriteString("Array [ ")
		for i, element := range v.Elements {
			if i > 0 {
				sb.WriteString(" , ")
			}
			formatValue(sb, element, open)
		}
		sb.WriteString(" ]")
	case *Object:
		if v == nil {
			sb.WriteString(nullValue)
			return
		}
		// 没有Identity的对象用指针本身作为标识
		var key interface{} = v
		if v.Identity != "" {
			key = v.Identity
		}
		if open.Contains(key) {
			sb.WriteString("<cycle " + v.TypeName + ">")
			return
		}
		open.Add(key)
		defer open.Remove(key)
		sb.WriteString(v.TypeName + " { ")
		for i, field := range v.Fields {
			if i > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(field.Type + " " + field.Name + " = ")
			formatValue(sb, field.Value, open)
			sb.WriteString(";")
		}
		sb.WriteString(" }")
	default:
		sb.WriteString(nullValue)
	}
}
