// Copyright 2025 ilmut project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Line-oriented textual program format, the interchange form used by tools,
// rule files and tests:
//
//	v0 = LoadInt(5)
//	v1 = LoadBuiltin('print')
//	BeginWhile(v0)
//	  v2 = BinaryOp('+', v0, v0)
//	EndWhile()
//
// Name payloads come first in single quotes, then the integer payload,
// then input variables. Indentation is cosmetic and ignored on parsing.

package il

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Serialize produces the textual form of the program.
// Deserialize parses it back; the round trip is stable.
func (p *Program) Serialize() []byte {
	buf := new(bytes.Buffer)
	for i := range p.insns {
		ins := &p.insns[i]
		indent := p.depth[i]
		if ins.Op.Block == BlockContinue {
			indent--
		}
		fmt.Fprint(buf, strings.Repeat("  ", indent))
		if len(ins.Outputs) != 0 {
			for k, v := range ins.Outputs {
				if k != 0 {
					fmt.Fprint(buf, ", ")
				}
				fmt.Fprintf(buf, "v%v", uint32(v))
			}
			fmt.Fprint(buf, " = ")
		}
		fmt.Fprintf(buf, "%v(", ins.Op.Name)
		sep := ""
		if ins.Op.HasName {
			fmt.Fprintf(buf, "'%v'", ins.Name)
			sep = ", "
		}
		if ins.Op.HasVal {
			fmt.Fprintf(buf, "%v%v", sep, ins.Val)
			sep = ", "
		}
		for _, v := range ins.Inputs {
			fmt.Fprintf(buf, "%vv%v", sep, uint32(v))
			sep = ", "
		}
		fmt.Fprint(buf, ")\n")
	}
	return buf.Bytes()
}

// Deserialize parses the textual program form and validates the result
// through full program construction.
func Deserialize(data []byte, ops *OpSet) (*Program, error) {
	var insns []Instruction
	s := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; s.Scan(); n++ {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ins, err := parseLine(line, ops)
		if err != nil {
			return nil, fmt.Errorf("line %v: %w", n, err)
		}
		insns = append(insns, ins)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return NewProgram(ops, insns)
}

func parseLine(line string, ops *OpSet) (Instruction, error) {
	var ins Instruction
	lp := strings.IndexByte(line, '(')
	if lp < 0 || !strings.HasSuffix(line, ")") {
		return ins, fmt.Errorf("expected op(args...), got %q", line)
	}
	head, args := line[:lp], line[lp+1:len(line)-1]
	opName := strings.TrimSpace(head)
	if eq := strings.IndexByte(head, '='); eq >= 0 {
		opName = strings.TrimSpace(head[eq+1:])
		for _, s := range strings.Split(head[:eq], ",") {
			v, err := parseVar(strings.TrimSpace(s))
			if err != nil {
				return ins, err
			}
			ins.Outputs = append(ins.Outputs, v)
		}
	}
	op := ops.LookupName(opName)
	if op == nil {
		return ins, fmt.Errorf("unknown operation %q", opName)
	}
	ins.Op = op
	haveName, haveVal := false, false
	for _, arg := range splitArgs(args) {
		switch {
		case strings.HasPrefix(arg, "'"):
			if !op.HasName || haveName {
				return ins, fmt.Errorf("%v: unexpected name payload %v", opName, arg)
			}
			if !strings.HasSuffix(arg, "'") || len(arg) < 2 {
				return ins, fmt.Errorf("%v: unterminated name payload %v", opName, arg)
			}
			ins.Name = arg[1 : len(arg)-1]
			haveName = true
		case strings.HasPrefix(arg, "v") && len(arg) > 1 && arg[1] >= '0' && arg[1] <= '9':
			v, err := parseVar(arg)
			if err != nil {
				return ins, err
			}
			ins.Inputs = append(ins.Inputs, v)
		default:
			if !op.HasVal || haveVal {
				return ins, fmt.Errorf("%v: unexpected payload %q", opName, arg)
			}
			val, err := parseVal(arg)
			if err != nil {
				return ins, fmt.Errorf("%v: %w", opName, err)
			}
			ins.Val = val
			haveVal = true
		}
	}
	return ins, nil
}

func splitArgs(args string) []string {
	var res []string
	quoted := false
	start := 0
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case '\'':
			quoted = !quoted
		case ',':
			if !quoted {
				res = append(res, strings.TrimSpace(args[start:i]))
				start = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(args[start:]); tail != "" {
		res = append(res, tail)
	}
	return res
}

func parseVar(s string) (Var, error) {
	if !strings.HasPrefix(s, "v") {
		return 0, fmt.Errorf("bad variable %q", s)
	}
	id, err := strconv.ParseUint(s[1:], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad variable %q", s)
	}
	return Var(id), nil
}

func parseVal(s string) (uint64, error) {
	if strings.HasPrefix(s, "-") {
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("bad payload %q", s)
		}
		return uint64(v), nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad payload %q", s)
	}
	return v, nil
}
