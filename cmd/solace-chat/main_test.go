package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWSURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{server: "ws://localhost:8000", want: "ws://localhost:8000/ws/7?token=a+b%2F"},
		{server: "http://localhost:8000/", want: "ws://localhost:8000/ws/7?token=a+b%2F"},
		{server: "https://chat.example.com/base", want: "wss://chat.example.com/base/ws/7?token=a+b%2F"},
	}

	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			got, err := wsURL(tt.server, "/ws/7", "a b/")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := wsURL("ftp://x", "/ws/new", "t")
	assert.Error(t, err)
}

func TestPrinter(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.print(serverEvent{Type: "connected", Message: "Connected to chat: Chat 1"})
	p.print(serverEvent{Type: "message_received", Message: "hi"})
	p.print(serverEvent{Type: "ai_thinking", Message: "thinking"})
	p.print(serverEvent{Type: "ai_streaming", PartialMessage: "one two three"})
	p.print(serverEvent{Type: "ai_streaming", PartialMessage: "one two three four", IsComplete: true})
	p.print(serverEvent{Type: "ai_response", Message: "one two three four"})
	p.print(serverEvent{Type: "ai_response", Message: "unstreamed"})
	p.print(serverEvent{Type: "error", Code: "timeout", Message: "too slow"})

	assert.Equal(t,
		"[Connected to chat: Chat 1]\n"+
			"[thinking]\n"+
			"one two three four\n"+
			"unstreamed\n"+
			"[error timeout] too slow\n",
		buf.String())
}

func TestDescribeClose(t *testing.T) {
	var buf bytes.Buffer

	assert.NoError(t, describeClose(&websocket.CloseError{Code: websocket.CloseNormalClosure}, &buf))
	assert.ErrorContains(t, describeClose(&websocket.CloseError{Code: 4000}, &buf), "authentication failed")
	assert.ErrorContains(t, describeClose(&websocket.CloseError{Code: 4004, Text: "Chat not found or access denied"}, &buf), "4004")
	assert.ErrorContains(t, describeClose(errors.New("EOF"), &buf), "connection lost")
}
