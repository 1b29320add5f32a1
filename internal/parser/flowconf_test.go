package parser

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flow-classifier/internal/model"
)

func TestFlowConfParserParsesFlows(t *testing.T) {
	config := strings.Join([]string{
		"# comment lines outside a block are ignored",
		"config flow",
		"    edit \"web\"",
		"        set priority 100",
		"        set ref \"backend a\"",
		"        set protocols tcp UDP",
		"        set dst-ports \"80, 8000-8080\"",
		"        set dst-ports 443",
		"        set dst-addrs 10.0.0.0/8 \"2001:db8::/32\"",
		"        set src-addrs 192.168.0.0/16",
		"        set unknown-key whatever",
		"    next",
		"    edit \"ssh\"",
		"        set priority=50",
		"        set src-ports=1024-65535",
		"        set status disable",
		"    next",
		"end",
	}, "\n")

	p := NewFlowConfParser(strings.NewReader(config))
	require.NoError(t, p.Parse())
	require.Len(t, p.Flows, 2)

	assert.Equal(t, model.FlowDef{
		Name:      "web",
		Priority:  100,
		Ref:       "backend a",
		Protocols: []string{"tcp", "UDP"},
		DstPorts:  "443",
		DstAddrs:  []string{"10.0.0.0/8", "2001:db8::/32"},
		SrcAddrs:  []string{"192.168.0.0/16"},
	}, p.Flows[0])
	assert.Equal(t, model.FlowDef{
		Name:     "ssh",
		Priority: 50,
		SrcPorts: "1024-65535",
		Disabled: true,
	}, p.Flows[1])
}

func TestFlowConfParserErrors(t *testing.T) {
	// A block without "end" and a non-numeric priority are both fatal.
	p := NewFlowConfParser(strings.NewReader("config flow\nedit a\nset priority 1\nnext\n"))
	err := p.Parse()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	p = NewFlowConfParser(strings.NewReader("config flow\nedit a\nset priority high\nnext\nend\n"))
	err = p.Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")

	p = NewFlowConfParser(strings.NewReader("config flow\nedit\nend\n"))
	assert.Error(t, p.Parse())
}

func TestFlowConfParserSetReplacesEarlierValue(t *testing.T) {
	// A repeated set line overrides the previous one, it does not extend it.
	config := strings.Join([]string{
		"config flow",
		"    edit web",
		"        set protocols tcp",
		"        set protocols udp",
		"        set dst-ports 80",
		"        set dst-ports 443 8443",
		"        set src-addrs 10.0.0.0/8",
		"        set src-addrs 192.168.0.0/16",
		"    next",
		"end",
	}, "\n")

	p := NewFlowConfParser(strings.NewReader(config))
	require.NoError(t, p.Parse())
	require.Len(t, p.Flows, 1)
	assert.Equal(t, []string{"udp"}, p.Flows[0].Protocols)
	assert.Equal(t, "443,8443", p.Flows[0].DstPorts)
	assert.Equal(t, []string{"192.168.0.0/16"}, p.Flows[0].SrcAddrs)
}

func TestSplitArgsHandlesQuotes(t *testing.T) {
	assert.Equal(t, []string{"a b", "c", "d"}, splitArgs([]string{`"a`, `b"`, "c", `"d"`}))
	assert.Equal(t, []string{"open"}, splitArgs([]string{`"open`}))
	assert.Equal(t, []string{""}, splitArgs([]string{`""`}))
}
