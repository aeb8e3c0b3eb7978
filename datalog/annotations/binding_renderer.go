package annotations

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// BindingRenderer pretty-prints binding sets as Bindings([?a ?b], N).
type BindingRenderer struct {
	useColor bool
}

// NewBindingRenderer creates a new binding renderer
func NewBindingRenderer(useColor bool) *BindingRenderer {
	return &BindingRenderer{useColor: useColor}
}

// RenderBindings renders the variable names and the number of bindings.
func (r *BindingRenderer) RenderBindings(vars []string, count int) string {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = "?" + v
	}
	list := strings.Join(names, " ")

	if r.useColor {
		return fmt.Sprintf("%s%s%s%s%s",
			color.BlueString("Bindings(["),
			color.CyanString(list),
			color.BlueString("], "),
			color.MagentaString("%d", count),
			color.BlueString(")"))
	}
	return fmt.Sprintf("Bindings([%s], %d)", list, count)
}
