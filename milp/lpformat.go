package milp

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// WriteLP serializes the program in CPLEX LP format, which most MILP
// solvers read. Names are rewritten to the LP character set and
// disambiguated when the rewrite makes them collide.
func WriteLP(w io.Writer, p *Program) error {
	bw := bufio.NewWriter(w)

	varNames := lpNames(len(p.Vars), func(i int) string { return p.Vars[i].Name }, "x")
	rowNames := lpNames(len(p.Constraints), func(i int) string { return p.Constraints[i].Name }, "c")

	fmt.Fprintf(bw, "\\ Problem name: %s\n", p.Name)
	if p.Objective.Sense == Maximize {
		bw.WriteString("Maximize\n")
	} else {
		bw.WriteString("Minimize\n")
	}
	bw.WriteString(" obj:")
	writeTerms(bw, p.Objective.Terms, varNames)
	if p.Objective.Constant != 0 {
		bw.WriteString(signed(p.Objective.Constant))
	}
	bw.WriteString("\n")

	bw.WriteString("Subject To\n")
	for idx, c := range p.Constraints {
		if len(c.Terms) == 0 && len(varNames) == 0 {
			continue
		}
		fmt.Fprintf(bw, " %s:", rowNames[idx])
		if len(c.Terms) == 0 {
			// LP format needs at least one variable on the left
			bw.WriteString(" 0 " + varNames[0])
		}
		writeTerms(bw, c.Terms, varNames)
		fmt.Fprintf(bw, " %s %s\n", c.Op, strconv.FormatFloat(c.RHS, 'g', -1, 64))
	}

	bw.WriteString("Bounds\n")
	for idx, v := range p.Vars {
		if v.Kind == Binary {
			continue
		}
		switch {
		case math.IsInf(v.Lower, -1) && math.IsInf(v.Upper, 1):
			fmt.Fprintf(bw, " %s free\n", varNames[idx])
		case v.Lower == v.Upper:
			fmt.Fprintf(bw, " %s = %s\n", varNames[idx], lpNum(v.Lower))
		default:
			fmt.Fprintf(bw, " %s <= %s <= %s\n", lpNum(v.Lower), varNames[idx], lpNum(v.Upper))
		}
	}

	writeSection(bw, "Generals", p, varNames, Integer)
	writeSection(bw, "Binaries", p, varNames, Binary)
	bw.WriteString("End\n")

	return bw.Flush()
}

func writeSection(bw *bufio.Writer, header string, p *Program, varNames []string, kind VarKind) {
	written := false
	for idx, v := range p.Vars {
		if v.Kind != kind {
			continue
		}
		if !written {
			bw.WriteString(header + "\n")
			written = true
		}
		bw.WriteString(" " + varNames[idx] + "\n")
	}
}

func writeTerms(bw *bufio.Writer, terms []Term, varNames []string) {
	for _, t := range terms {
		bw.WriteString(signed(t.Coef) + " " + varNames[t.Var])
	}
}

func signed(x float64) string {
	if x < 0 {
		return " - " + strconv.FormatFloat(-x, 'g', -1, 64)
	}
	return " + " + strconv.FormatFloat(x, 'g', -1, 64)
}

func lpNum(x float64) string {
	switch {
	case math.IsInf(x, 1):
		return "+inf"
	case math.IsInf(x, -1):
		return "-inf"
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// lpNames maps names onto the characters the LP format accepts
func lpNames(n int, name func(int) string, prefix string) []string {
	rtn := make([]string, n)
	used := make(map[string]bool, n)
	for idx := 0; idx < n; idx++ {
		nm := sanitize(name(idx))
		if nm == "" || strings.ContainsRune("0123456789.eE", rune(nm[0])) {
			nm = prefix + "_" + nm
		}
		if used[nm] {
			nm = nm + "_" + strconv.Itoa(idx)
		}
		used[nm] = true
		rtn[idx] = nm
	}
	return rtn
}

func sanitize(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case strings.ContainsRune("!\"#$%&()/,.;?@_`'{}|~", r):
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
