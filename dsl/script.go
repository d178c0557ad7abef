// Package dsl builds flows from a small line-oriented script, useful for
// trying graph shapes without writing Go.
//
//	node greet = set greeting "hello {{name}}"
//	node show  = print "{{greeting}}"
//	start greet
//	connect greet -> show
//
// Edges default to the empty action label; `connect a -> b on retry`
// wires an explicit label.
package dsl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	stepflow "stepflow"
	"stepflow/flows"
	"stepflow/nodes"
)

type connection struct {
	from   string
	to     string
	action string
}

// Parser turns scripts into flows.
type Parser struct {
	out io.Writer
}

func NewParser() *Parser {
	return &Parser{out: os.Stdout}
}

// WithOutput redirects print steps, mainly for tests.
func (p *Parser) WithOutput(out io.Writer) *Parser {
	p.out = out
	return p
}

// Parse builds a flow from a script.
func Parse(script string) (*flows.Flow, error) {
	return NewParser().Parse(script)
}

func (p *Parser) Parse(script string) (*flows.Flow, error) {
	built := make(map[string]stepflow.Node)
	var start string
	var firstNode string
	var connections []connection

	for idx, raw := range strings.Split(script, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lineNum := idx + 1

		directive, rest := takeToken(line)
		switch directive {
		case "node":
			name, node, err := p.parseNode(lineNum, rest)
			if err != nil {
				return nil, err
			}
			if _, exists := built[name]; exists {
				return nil, fmt.Errorf("dsl line %d: node %q already defined", lineNum, name)
			}
			built[name] = node
			if firstNode == "" {
				firstNode = name
			}
		case "start":
			name, _ := takeToken(rest)
			if name == "" {
				return nil, fmt.Errorf("dsl line %d: start requires a node name", lineNum)
			}
			start = name
		case "connect":
			conn, err := parseConnect(lineNum, rest)
			if err != nil {
				return nil, err
			}
			connections = append(connections, conn)
		default:
			return nil, fmt.Errorf("dsl line %d: unsupported directive %q", lineNum, directive)
		}
	}

	if len(built) == 0 {
		return nil, fmt.Errorf("script contains no nodes")
	}
	if start == "" {
		start = firstNode
	}

	entry, ok := built[start]
	if !ok {
		return nil, fmt.Errorf("start node %q is not defined", start)
	}

	for _, conn := range connections {
		from, ok := built[conn.from]
		if !ok {
			return nil, fmt.Errorf("connect references unknown node %q", conn.from)
		}
		to, ok := built[conn.to]
		if !ok {
			return nil, fmt.Errorf("connect references unknown node %q", conn.to)
		}
		from.On(conn.action, to)
	}

	return flows.NewFlow(entry), nil
}

// parseNode handles `NAME = KIND args...`.
func (p *Parser) parseNode(line int, rest string) (string, stepflow.Node, error) {
	name, rest := takeToken(rest)
	if name == "" {
		return "", nil, fmt.Errorf("dsl line %d: node requires a name", line)
	}

	eq, rest := takeToken(rest)
	if eq != "=" {
		return "", nil, fmt.Errorf("dsl line %d: expected '=' after node name", line)
	}

	kind, args := takeToken(rest)
	node, err := p.buildStep(line, name, kind, strings.TrimSpace(args))
	if err != nil {
		return "", nil, err
	}
	return name, node, nil
}

func (p *Parser) buildStep(line int, name, kind, args string) (stepflow.Node, error) {
	switch strings.ToLower(kind) {
	case "set":
		key, rest := takeToken(args)
		if key == "" {
			return nil, fmt.Errorf("dsl line %d: missing key for set", line)
		}
		value, err := parseStringArgument(rest)
		if err != nil {
			return nil, fmt.Errorf("dsl line %d: invalid value for %s: %w", line, key, err)
		}
		return nodes.NewFuncNode(name).WithPost(func(_ context.Context, shared map[string]any, _, _ any) (string, error) {
			shared[key] = renderTemplate(value, shared)
			return stepflow.DefaultAction, nil
		}), nil
	case "print":
		message, err := parseStringArgument(args)
		if err != nil {
			return nil, fmt.Errorf("dsl line %d: print message %w", line, err)
		}
		out := p.out
		return nodes.NewFuncNode(name).
			WithPrep(func(_ context.Context, shared map[string]any) (any, error) {
				return renderTemplate(message, shared), nil
			}).
			WithExec(func(_ context.Context, prepared any) (any, error) {
				_, err := fmt.Fprintln(out, prepared)
				return nil, err
			}), nil
	case "delay":
		arg := strings.TrimSpace(args)
		if arg == "" {
			return nil, fmt.Errorf("dsl line %d: delay duration required", line)
		}
		dur, err := time.ParseDuration(arg)
		if err != nil {
			return nil, fmt.Errorf("dsl line %d: invalid duration %q: %w", line, arg, err)
		}
		return nodes.NewDelayNode(name, dur), nil
	case "sh":
		command, err := parseStringArgument(args)
		if err != nil {
			return nil, fmt.Errorf("dsl line %d: sh command %w", line, err)
		}
		return nodes.NewCommandNode(nodes.CommandNodeConfig{
			Name:        name,
			Command:     "sh",
			Args:        []string{"-c", command},
			OutputKey:   name,
			ParseAction: true,
		}), nil
	default:
		return nil, fmt.Errorf("dsl line %d: unknown node kind %q", line, kind)
	}
}

// parseConnect handles `A -> B [on ACTION]`.
func parseConnect(line int, rest string) (connection, error) {
	from, rest := takeToken(rest)
	arrow, rest := takeToken(rest)
	to, rest := takeToken(rest)
	if from == "" || arrow != "->" || to == "" {
		return connection{}, fmt.Errorf("dsl line %d: expected 'connect FROM -> TO'", line)
	}

	conn := connection{from: from, to: to, action: stepflow.DefaultAction}
	if keyword, remainder := takeToken(rest); keyword != "" {
		if keyword != "on" {
			return connection{}, fmt.Errorf("dsl line %d: unexpected token %q", line, keyword)
		}
		action, _ := takeToken(remainder)
		if action == "" {
			return connection{}, fmt.Errorf("dsl line %d: 'on' requires an action label", line)
		}
		conn.action = action
	}
	return conn, nil
}

func takeToken(line string) (string, string) {
	line = strings.TrimLeftFunc(line, unicode.IsSpace)
	if line == "" {
		return "", ""
	}

	if line[0] == '"' {
		var builder strings.Builder
		escaping := false
		for i := 1; i < len(line); i++ {
			ch := line[i]
			if escaping {
				builder.WriteByte(ch)
				escaping = false
				continue
			}

			if ch == '\\' {
				escaping = true
				continue
			}

			if ch == '"' {
				return builder.String(), line[i+1:]
			}

			builder.WriteByte(ch)
		}
		return builder.String(), ""
	}

	i := 0
	for i < len(line) && !unicode.IsSpace(rune(line[i])) {
		i++
	}

	return line[:i], line[i:]
}

func parseStringArgument(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("expected a value")
	}

	if value[0] == '"' {
		unquoted, err := strconv.Unquote(value)
		if err != nil {
			return "", err
		}
		return unquoted, nil
	}

	return value, nil
}

// renderTemplate substitutes {{key}} references with shared values.
func renderTemplate(template string, shared map[string]any) string {
	if shared == nil || !strings.Contains(template, "{{") {
		return template
	}

	var builder strings.Builder
	for i := 0; i < len(template); {
		if i+1 < len(template) && template[i] == '{' && template[i+1] == '{' {
			if close := strings.Index(template[i+2:], "}}"); close >= 0 {
				key := strings.TrimSpace(template[i+2 : i+2+close])
				if val, ok := shared[key]; ok {
					builder.WriteString(fmt.Sprint(val))
				} else {
					builder.WriteString("{{")
					builder.WriteString(key)
					builder.WriteString("}}")
				}
				i += close + 4
				continue
			}
		}
		builder.WriteByte(template[i])
		i++
	}

	return builder.String()
}
