// ABOUTME: Renders gateway events to the terminal
// ABOUTME: Streamed partial replies print only their new suffix

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/solace-gateway/internal/protocol"
)

type printer struct {
	out      io.Writer
	streamed string // reply text printed so far for the turn in flight
	dim      *color.Color
	agent    *color.Color
	warn     *color.Color
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:   out,
		dim:   color.New(color.FgHiBlack),
		agent: color.New(color.FgCyan),
		warn:  color.New(color.FgRed),
	}
}

func (p *printer) print(ev serverEvent) {
	switch ev.Type {
	case protocol.TypeChatCreated:
		p.dim.Fprintf(p.out, "[created %s, id %d]\n", ev.ChatName, ev.ChatID)

	case protocol.TypeConnected:
		p.dim.Fprintf(p.out, "[%s]\n", ev.Message)

	case protocol.TypeMessageReceived:
		// The server echoes what we typed; nothing to show.

	case protocol.TypeAIThinking:
		p.dim.Fprintf(p.out, "[%s]\n", ev.Message)

	case protocol.TypeAIStreaming:
		suffix := ev.PartialMessage
		if strings.HasPrefix(ev.PartialMessage, p.streamed) {
			suffix = strings.TrimPrefix(ev.PartialMessage, p.streamed)
		} else if p.streamed != "" {
			fmt.Fprintln(p.out)
		}
		p.agent.Fprint(p.out, suffix)
		p.streamed = ev.PartialMessage

	case protocol.TypeAIResponse:
		if p.streamed == "" {
			p.agent.Fprint(p.out, ev.Message)
		}
		fmt.Fprintln(p.out)
		p.streamed = ""

	case protocol.TypeError:
		p.streamed = ""
		p.warn.Fprintf(p.out, "[error %s] %s\n", ev.Code, ev.Message)
	}
}
