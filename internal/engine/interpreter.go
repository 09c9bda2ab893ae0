package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Rack is the device surface a script can drive. Satisfied by
// devices.Registry; tests substitute fakes.
type Rack interface {
	SetParameter(id, name, value string) error
	Read(id string) (float64, error)
	Trigger(id string) error
}

// Env carries everything a running script may touch.
type Env struct {
	Devices Rack
	// Print receives the output of print statements. Nil discards.
	Print func(text string)
}

// Interpreter validates and runs script content. Validate must reject
// anything Run would fail to parse, so uploads catch syntax errors early.
type Interpreter interface {
	Validate(content string) error
	Run(ctx context.Context, content string, env Env) error
}

// statement is one parsed script line.
type statement struct {
	line int
	verb string
	args []string
}

// LineInterpreter executes the line-oriented control language: one statement
// per line, verbs print, sleep, set, read, trigger. Both `verb a b` and
// `verb(a, b)` spellings are accepted. Lines starting with # are comments.
type LineInterpreter struct{}

func NewLineInterpreter() *LineInterpreter {
	return &LineInterpreter{}
}

func (li *LineInterpreter) Validate(content string) error {
	_, err := parse(content)
	return err
}

func (li *LineInterpreter) Run(ctx context.Context, content string, env Env) error {
	statements, err := parse(content)
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := li.exec(ctx, stmt, env); err != nil {
			return fmt.Errorf("line %d: %w", stmt.line, err)
		}
	}
	return nil
}

func (li *LineInterpreter) exec(ctx context.Context, stmt statement, env Env) error {
	switch stmt.verb {
	case "print":
		if env.Print != nil {
			env.Print(strings.Join(stmt.args, " "))
		}
		return nil
	case "sleep":
		if len(stmt.args) != 1 {
			return fmt.Errorf("sleep takes one argument, got %d", len(stmt.args))
		}
		seconds, err := strconv.ParseFloat(stmt.args[0], 64)
		if err != nil || seconds < 0 {
			return fmt.Errorf("sleep: bad duration %q", stmt.args[0])
		}
		timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		}
	case "set":
		if len(stmt.args) != 3 {
			return fmt.Errorf("set takes device, parameter, value, got %d arguments", len(stmt.args))
		}
		if env.Devices == nil {
			return fmt.Errorf("set: no devices available")
		}
		return env.Devices.SetParameter(stmt.args[0], stmt.args[1], stmt.args[2])
	case "read":
		if len(stmt.args) != 1 {
			return fmt.Errorf("read takes one device, got %d arguments", len(stmt.args))
		}
		if env.Devices == nil {
			return fmt.Errorf("read: no devices available")
		}
		value, err := env.Devices.Read(stmt.args[0])
		if err != nil {
			return err
		}
		if env.Print != nil {
			env.Print(fmt.Sprintf("%s = %g", stmt.args[0], value))
		}
		return nil
	case "trigger":
		if len(stmt.args) != 1 {
			return fmt.Errorf("trigger takes one device, got %d arguments", len(stmt.args))
		}
		if env.Devices == nil {
			return fmt.Errorf("trigger: no devices available")
		}
		return env.Devices.Trigger(stmt.args[0])
	default:
		return fmt.Errorf("unknown statement %q", stmt.verb)
	}
}

func parse(content string) ([]statement, error) {
	var out []statement
	for i, raw := range strings.Split(content, "\n") {
		lineNo := i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		stmt, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		stmt.line = lineNo
		out = append(out, stmt)
	}
	return out, nil
}

func parseLine(line string) (statement, error) {
	if err := checkBalance(line); err != nil {
		return statement{}, err
	}
	if open := strings.IndexByte(line, '('); open >= 0 {
		verb := strings.TrimSpace(line[:open])
		if verb == "" || strings.ContainsAny(verb, " \t") {
			return statement{}, fmt.Errorf("malformed call %q", line)
		}
		if !strings.HasSuffix(line, ")") {
			return statement{}, fmt.Errorf("trailing content after call in %q", line)
		}
		inner := line[open+1 : len(line)-1]
		var args []string
		if strings.TrimSpace(inner) != "" {
			for _, part := range strings.Split(inner, ",") {
				args = append(args, unquote(strings.TrimSpace(part)))
			}
		}
		return statement{verb: verb, args: args}, nil
	}
	fields := strings.Fields(line)
	args := make([]string, 0, len(fields)-1)
	for _, f := range fields[1:] {
		args = append(args, unquote(f))
	}
	return statement{verb: fields[0], args: args}, nil
}

// checkBalance rejects lines with unbalanced parentheses or braces.
func checkBalance(line string) error {
	var depth, braces int
	for _, r := range line {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return fmt.Errorf("unbalanced parentheses in %q", line)
			}
		case '{':
			braces++
		case '}':
			braces--
			if braces < 0 {
				return fmt.Errorf("unbalanced braces in %q", line)
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced parentheses in %q", line)
	}
	if braces != 0 {
		return fmt.Errorf("unbalanced braces in %q", line)
	}
	return nil
}

func unquote(arg string) string {
	if len(arg) >= 2 {
		if (arg[0] == '"' && arg[len(arg)-1] == '"') || (arg[0] == '\'' && arg[len(arg)-1] == '\'') {
			return arg[1 : len(arg)-1]
		}
	}
	return arg
}
