package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Render is a separate read-only pass producing a human-readable listing:
// pure nodes referenced exactly once are inlined into their consumer's
// expression; every other node (impure, unreferenced, or shared) gets a
// symbolic label "OpName_k" and its own line.
func Render(c *Code) string {
	refcount := map[Pos]int{}
	Pass(c, VisitFunc(func(v View) {
		info := v.Op.info()
		for i, a := range v.Args {
			if isRefArg(info, i) {
				refcount[Pos(a)]++
			}
		}
	}))

	labels := map[Pos]string{}
	counters := map[string]int{}

	var exprText func(pos Pos) string
	var formatNode func(v View) string

	exprText = func(pos Pos) string {
		if lbl, ok := labels[pos]; ok {
			return lbl
		}
		v := c.NodeAt(pos)
		if v.Op.IsPure() && refcount[pos] == 1 {
			return formatNode(v)
		}
		name := v.Op.Name()
		lbl := fmt.Sprintf("%s_%d", name, counters[name])
		counters[name]++
		labels[pos] = lbl
		return lbl
	}

	formatNode = func(v View) string {
		info := v.Op.info()
		parts := make([]string, len(v.Args))
		for i, a := range v.Args {
			if isRefArg(info, i) {
				parts[i] = exprText(Pos(a))
			} else {
				parts[i] = strconv.FormatInt(int64(a), 10)
			}
		}
		return fmt.Sprintf("%s(%s)", v.Op.Name(), strings.Join(parts, ", "))
	}

	var lines []string
	Pass(c, VisitFunc(func(v View) {
		if v.Op.IsPure() && refcount[v.Pos] == 1 {
			return // inlined at its single use site, no standalone line
		}
		lbl := exprText(v.Pos)
		lines = append(lines, fmt.Sprintf("%s = %s", lbl, formatNode(v)))
	}))

	return strings.Join(lines, "\n")
}

func isRefArg(info opInfo, i int) bool {
	if i < len(info.argIsRef) {
		return info.argIsRef[i]
	}
	return info.variadicRefs
}
