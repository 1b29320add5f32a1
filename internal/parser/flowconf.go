package parser

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"flow-classifier/internal/model"
)

// FlowConfParser reads flow definitions written as config stanzas:
//
//	config flow
//	    edit "web"
//	        set priority 100
//	        set ref "backend-a"
//	        set protocols tcp udp
//	        set dst-ports "80, 8000-8080"
//	        set dst-addrs 10.0.0.0/8 2001:db8::/32
//	    next
//	end
type FlowConfParser struct {
	scanner *bufio.Scanner
	line    int

	Flows []model.FlowDef
}

func NewFlowConfParser(reader io.Reader) *FlowConfParser {
	return &FlowConfParser{
		scanner: bufio.NewScanner(reader),
	}
}

func (p *FlowConfParser) scan() bool {
	if !p.scanner.Scan() {
		return false
	}
	p.line++
	return true
}

func (p *FlowConfParser) Parse() error {
	for p.scan() {
		line := strings.TrimSpace(p.scanner.Text())
		if strings.HasPrefix(line, "config flow") {
			if err := p.parseFlowConfig(); err != nil {
				return fmt.Errorf("failed to parse flow config: %w", err)
			}
		}
	}
	if err := p.scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

func (p *FlowConfParser) parseFlowConfig() error {
	var current *model.FlowDef

	for p.scan() {
		line := strings.TrimSpace(p.scanner.Text())
		if line == "end" {
			return nil
		}
		parts := strings.Fields(line)
		if len(parts) == 0 || strings.HasPrefix(parts[0], "#") {
			continue
		}
		switch parts[0] {
		case "edit":
			if len(parts) < 2 {
				return fmt.Errorf("line %d: edit without a flow name", p.line)
			}
			p.Flows = append(p.Flows, model.FlowDef{Name: unquote(strings.Join(parts[1:], " "))})
			current = &p.Flows[len(p.Flows)-1]
		case "set":
			if current == nil || len(parts) < 2 {
				continue
			}
			// "set dst-ports=80" is accepted as well.
			if key, value, ok := strings.Cut(parts[1], "="); ok {
				parts = append([]string{parts[0], key, value}, parts[2:]...)
			}
			args := splitArgs(parts[2:])
			if len(args) == 0 {
				continue
			}

			switch parts[1] {
			case "priority":
				priority, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("line %d: flow %s: bad priority %q", p.line, current.Name, args[0])
				}
				current.Priority = priority
			case "ref":
				current.Ref = strings.Join(args, " ")
			case "protocols":
				current.Protocols = args
			case "dst-ports":
				current.DstPorts = strings.Join(args, ",")
			case "src-ports":
				current.SrcPorts = strings.Join(args, ",")
			case "dst-addrs":
				current.DstAddrs = args
			case "src-addrs":
				current.SrcAddrs = args
			case "status":
				current.Disabled = args[0] == "disable"
			}
		case "next":
			current = nil
		}
	}
	return io.ErrUnexpectedEOF
}

// splitArgs undoes the shell-like quoting of a set line. Quoted values may
// contain spaces; unquoted values are split on whitespace.
func splitArgs(fields []string) []string {
	raw := strings.Join(fields, " ")
	var args []string
	for raw != "" {
		raw = strings.TrimSpace(raw)
		if strings.HasPrefix(raw, `"`) {
			end := strings.Index(raw[1:], `"`)
			if end < 0 {
				args = append(args, unquote(raw))
				break
			}
			args = append(args, raw[1:end+1])
			raw = raw[end+2:]
			continue
		}
		word, rest, _ := strings.Cut(raw, " ")
		args = append(args, word)
		raw = rest
	}
	return args
}

func unquote(s string) string {
	return strings.Trim(s, `"`)
}
