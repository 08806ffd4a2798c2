package mip

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// termsPerLine keeps LP lines well under the 255-character limit some
// readers enforce.
const termsPerLine = 8

// WriteLP writes the model in CPLEX LP format.
func WriteLP(w io.Writer, m *Model) error {
	if m.NumVars() == 0 {
		return eris.New("mip: model has no variables")
	}
	bw := bufio.NewWriter(w)

	if m.Name != "" {
		bw.WriteString(`\ ` + m.Name + "\n")
	}
	if m.ObjSense == Maximize {
		bw.WriteString("Maximize\n")
	} else {
		bw.WriteString("Minimize\n")
	}
	writeExpr(bw, m, " obj:", m.Objective)
	bw.WriteString("\n")

	bw.WriteString("Subject To\n")
	for i, c := range m.Constraints {
		name := c.Name
		if name == "" {
			name = "c" + strconv.Itoa(i)
		}
		writeExpr(bw, m, " "+name+":", c.Terms)
		bw.WriteString(" " + c.Sense.String() + " " + formatNumber(c.RHS) + "\n")
	}

	bw.WriteString("Binary\n")
	for i := 0; i < m.NumVars(); i += termsPerLine {
		end := min(i+termsPerLine, m.NumVars())
		line := make([]string, 0, end-i)
		for j := i; j < end; j++ {
			line = append(line, m.names[j])
		}
		bw.WriteString(" " + strings.Join(line, " ") + "\n")
	}
	bw.WriteString("End\n")

	return eris.Wrap(bw.Flush(), "mip: write lp")
}

func writeExpr(bw *bufio.Writer, m *Model, label string, terms []Term) {
	bw.WriteString(label)
	if len(terms) == 0 {
		// LP rows need at least one term.
		bw.WriteString(" 0 " + m.names[0])
		return
	}
	for i, t := range terms {
		if i > 0 && i%termsPerLine == 0 {
			bw.WriteString("\n  ")
		}
		sign := "+"
		if t.Coef < 0 || (t.Coef == 0 && math.Signbit(t.Coef)) {
			sign = "-"
		}
		if i == 0 && sign == "+" {
			bw.WriteString(" ")
		} else {
			bw.WriteString(" " + sign + " ")
		}
		bw.WriteString(formatNumber(math.Abs(t.Coef)) + " " + m.names[t.Var])
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
