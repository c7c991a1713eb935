// Package replay reads memory-access traces and plays them against a kernel.
package replay

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sarchlab/vmkernel/mem/vm"
)

// OpKind is the kind of a trace operation.
type OpKind int

// The trace operations.
const (
	OpSpawn OpKind = iota
	OpSwitch
	OpRead
	OpWrite
	OpExit
	OpHalt
)

var opNames = map[OpKind]string{
	OpSpawn:  "spawn",
	OpSwitch: "switch",
	OpRead:   "r",
	OpWrite:  "w",
	OpExit:   "exit",
	OpHalt:   "halt",
}

func (k OpKind) String() string {
	name, ok := opNames[k]
	if !ok {
		return fmt.Sprintf("OpKind(%d)", int(k))
	}

	return name
}

// Op is one line of a trace.
type Op struct {
	Line int
	Kind OpKind

	PID      vm.PID
	Pages    int
	ReadOnly int
	Preload  bool

	Addr  uint64
	Size  int
	Value uint32
}

// A ParseError reports a malformed trace line.
type ParseError struct {
	Line int
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// Parse reads a trace. Each line is one of
//
//	spawn PID PAGES [ro=N] [preload]
//	switch PID
//	r ADDR SIZE
//	w ADDR SIZE VALUE
//	exit PID
//	halt
//
// Numbers may be decimal or 0x-prefixed hexadecimal. Blank lines and text
// after # are ignored.
func Parse(r io.Reader) ([]Op, error) {
	var ops []Op

	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		text := scanner.Text()

		line := text
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		op, msg := parseFields(fields)
		if msg != "" {
			return nil, &ParseError{Line: lineNo, Text: text, Msg: msg}
		}

		op.Line = lineNo
		ops = append(ops, op)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return ops, nil
}

func parseFields(fields []string) (Op, string) {
	args := fields[1:]

	switch fields[0] {
	case "spawn":
		return parseSpawn(args)
	case "switch":
		return parsePIDOp(OpSwitch, args)
	case "exit":
		return parsePIDOp(OpExit, args)
	case "halt":
		if len(args) != 0 {
			return Op{}, "halt takes no arguments"
		}

		return Op{Kind: OpHalt}, ""
	case "r":
		return parseAccess(OpRead, args, 2)
	case "w":
		return parseAccess(OpWrite, args, 3)
	default:
		return Op{}, "unknown operation " + fields[0]
	}
}

func parseSpawn(args []string) (Op, string) {
	if len(args) < 2 {
		return Op{}, "spawn needs a pid and a number of pages"
	}

	pid, err := parseUint(args[0], 32)
	if err != nil {
		return Op{}, "invalid pid"
	}

	pages, err := parseUint(args[1], 31)
	if err != nil || pages == 0 {
		return Op{}, "invalid number of pages"
	}

	op := Op{Kind: OpSpawn, PID: vm.PID(pid), Pages: int(pages)}

	for _, opt := range args[2:] {
		switch {
		case opt == "preload":
			op.Preload = true
		case strings.HasPrefix(opt, "ro="):
			ro, err := parseUint(strings.TrimPrefix(opt, "ro="), 31)
			if err != nil || int(ro) > op.Pages {
				return Op{}, "invalid number of read-only pages"
			}

			op.ReadOnly = int(ro)
		default:
			return Op{}, "unknown spawn option " + opt
		}
	}

	return op, ""
}

func parsePIDOp(kind OpKind, args []string) (Op, string) {
	if len(args) != 1 {
		return Op{}, kind.String() + " needs a pid"
	}

	pid, err := parseUint(args[0], 32)
	if err != nil {
		return Op{}, "invalid pid"
	}

	return Op{Kind: kind, PID: vm.PID(pid)}, ""
}

func parseAccess(kind OpKind, args []string, numArgs int) (Op, string) {
	if len(args) != numArgs {
		return Op{}, fmt.Sprintf("%s needs %d arguments", kind, numArgs)
	}

	addr, err := parseUint(args[0], 64)
	if err != nil {
		return Op{}, "invalid address"
	}

	size, err := parseUint(args[1], 8)
	if err != nil || (size != 1 && size != 2 && size != 4) {
		return Op{}, "size must be 1, 2, or 4"
	}

	op := Op{Kind: kind, Addr: addr, Size: int(size)}

	if kind == OpWrite {
		value, err := parseUint(args[2], 32)
		if err != nil {
			return Op{}, "invalid value"
		}

		op.Value = uint32(value)
	}

	return op, ""
}

func parseUint(s string, bits int) (uint64, error) {
	return strconv.ParseUint(s, 0, bits)
}
