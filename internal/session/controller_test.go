// ABOUTME: Tests for handshake paths: bind, auth failures, not found, conflicts, shutdown
// ABOUTME: Also covers the create-new handshake and idempotent teardown

package session

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/solace-gateway/internal/auth"
	"github.com/2389/solace-gateway/internal/protocol"
)

func TestServe_BindSendsOneConnectedAndRegisters(t *testing.T) {
	h := newHarness(t, newRecordingGenerator())
	conn := newFakeConn()

	done := h.serve(context.Background(), conn, h.token, h.conv.ID)

	msg := conn.expect(t, "connected")
	assert.Equal(t, float64(h.conv.ID), msg["chat_id"])
	assert.Equal(t, "Connected to chat: Chat 1", msg["message"])

	assert.Equal(t, 1, h.registry.Len())
	entry, ok := h.registry.Lookup(h.user.ID)
	require.True(t, ok)
	assert.Equal(t, h.conv.ID, entry.ConversationID)

	conn.disconnect()
	waitDone(t, done)

	code, _ := conn.waitClosed(t)
	assert.Equal(t, protocol.CloseNormal, code)
	assert.Empty(t, conn.drain(), "no second connected message")
	assert.Equal(t, 0, h.registry.Len())
}

func TestServe_AuthFailures(t *testing.T) {
	h := newHarness(t, newRecordingGenerator())

	expired, err := h.validator.Generate("alice", -time.Minute)
	require.NoError(t, err)
	ghost, err := h.validator.Generate("ghost", time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":         "not-a-token",
		"empty":           "",
		"expired":         expired,
		"unknown subject": ghost,
	} {
		t.Run(name, func(t *testing.T) {
			conn := newFakeConn()
			done := h.serve(context.Background(), conn, token, h.conv.ID)
			waitDone(t, done)

			code, reason := conn.waitClosed(t)
			assert.Equal(t, protocol.CloseAuthFailed, code)
			assert.Equal(t, protocol.ReasonAuthFailed, reason)
			assert.Empty(t, conn.drain())
			assert.Equal(t, 0, h.registry.Len())
		})
	}
}

func TestServe_PrincipalUnavailable(t *testing.T) {
	h := newHarness(t, newRecordingGenerator())
	h.store.FailOn("GetUserByUsername", errors.New("database is locked"))

	conn := newFakeConn()
	waitDone(t, h.serve(context.Background(), conn, h.token, h.conv.ID))

	code, _ := conn.waitClosed(t)
	assert.Equal(t, protocol.CloseTryAgainLater, code)
	assert.Equal(t, 0, h.registry.Len())
}

func TestServe_NotFoundIsDistinctFromAuthFailure(t *testing.T) {
	h := newHarness(t, newRecordingGenerator())
	bob, bobToken := h.addUser(t, "bob")
	bobsConv, err := h.store.CreateConversation(context.Background(), bob.ID, "Chat 1")
	require.NoError(t, err)

	tests := []struct {
		name   string
		chatID int64
	}{
		{name: "missing", chatID: 9999},
		{name: "owned by someone else", chatID: bobsConv.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newFakeConn()
			waitDone(t, h.serve(context.Background(), conn, h.token, tt.chatID))

			code, reason := conn.waitClosed(t)
			assert.Equal(t, protocol.CloseNotFound, code)
			assert.Equal(t, protocol.ReasonNotFound, reason)
			assert.Empty(t, conn.drain())
			assert.Equal(t, 0, h.registry.Len())
		})
	}

	// Bob can still bind to his own conversation.
	conn := newFakeConn()
	done := h.serve(context.Background(), conn, bobToken, bobsConv.ID)
	conn.expect(t, "connected")
	conn.disconnect()
	waitDone(t, done)
}

func TestServe_StoreFailureDuringBinding(t *testing.T) {
	h := newHarness(t, newRecordingGenerator())
	h.store.FailOn("GetOwnedConversation", errors.New("disk I/O error"))

	conn := newFakeConn()
	waitDone(t, h.serve(context.Background(), conn, h.token, h.conv.ID))

	code, _ := conn.waitClosed(t)
	assert.Equal(t, protocol.CloseInternal, code)
	assert.Equal(t, 0, h.registry.Len())
}

func TestServe_SecondConnectionIsRejected(t *testing.T) {
	h := newHarness(t, newRecordingGenerator())

	first := newFakeConn()
	firstDone := h.serve(context.Background(), first, h.token, h.conv.ID)
	first.expect(t, "connected")
	entry, _ := h.registry.Lookup(h.user.ID)

	second := newFakeConn()
	waitDone(t, h.serve(context.Background(), second, h.token, h.conv.ID))

	code, reason := second.waitClosed(t)
	assert.Equal(t, protocol.CloseAlreadyConnected, code)
	assert.Equal(t, protocol.ReasonAlreadyConnected, reason)
	assert.Empty(t, second.drain())

	// The first connection keeps its entry and keeps working.
	after, ok := h.registry.Lookup(h.user.ID)
	require.True(t, ok)
	assert.Equal(t, entry.Handle.ConnID(), after.Handle.ConnID())
	completeTurn(t, first, "still here?")

	first.disconnect()
	waitDone(t, firstDone)
	assert.Equal(t, 0, h.registry.Len())

	// With the slot free, a new connection binds.
	third := newFakeConn()
	thirdDone := h.serve(context.Background(), third, h.token, h.conv.ID)
	third.expect(t, "connected")
	third.disconnect()
	waitDone(t, thirdDone)
}

func TestServe_RegistryShutdownClosesWithGoingAway(t *testing.T) {
	h := newHarness(t, newRecordingGenerator())
	conn := newFakeConn()

	done := h.serve(context.Background(), conn, h.token, h.conv.ID)
	conn.expect(t, "connected")

	h.registry.Shutdown()
	waitDone(t, done)

	code, _ := conn.waitClosed(t)
	assert.Equal(t, protocol.CloseGoingAway, code)
	assert.Equal(t, 0, h.registry.Len())
}

func TestServe_ParentContextCancelled(t *testing.T) {
	h := newHarness(t, newRecordingGenerator())
	conn := newFakeConn()
	ctx, cancel := context.WithCancel(context.Background())

	done := h.serve(ctx, conn, h.token, h.conv.ID)
	conn.expect(t, "connected")

	cancel()
	waitDone(t, done)

	code, _ := conn.waitClosed(t)
	assert.Equal(t, protocol.CloseGoingAway, code)
	assert.Equal(t, 0, h.registry.Len())
}

func TestTeardown_Idempotent(t *testing.T) {
	h := newHarness(t, newRecordingGenerator())
	conn := newFakeConn()

	s := h.ctrl.newSession(context.Background(), conn)
	s.identity = auth.Identity{ID: h.user.ID, Username: h.user.Username}
	require.NoError(t, h.registry.Register(s.identity.ID, h.conv.ID, s))
	s.registered = true

	s.teardown()
	s.teardown()

	assert.Equal(t, StateClosed, s.state)
	assert.Equal(t, 0, h.registry.Len())
	assert.Equal(t, 1, conn.closeCount())

	// A later entry for the same user is not touched by the old handle.
	other := h.ctrl.newSession(context.Background(), newFakeConn())
	require.NoError(t, h.registry.Register(s.identity.ID, h.conv.ID, other))
	assert.False(t, h.registry.Unregister(s.identity.ID, s))
	assert.Equal(t, 1, h.registry.Len())
	other.teardown()
}

func TestTeardown_NeverRegistered(t *testing.T) {
	h := newHarness(t, newRecordingGenerator())
	conn := newFakeConn()

	s := h.ctrl.newSession(context.Background(), conn)
	s.closeWith(protocol.CloseAuthFailed, protocol.ReasonAuthFailed)
	s.teardown()

	code, _ := conn.waitClosed(t)
	assert.Equal(t, protocol.CloseAuthFailed, code)
	assert.Equal(t, StateClosed, s.state)
}

func TestCreateNew(t *testing.T) {
	h := newHarness(t, newRecordingGenerator())

	conn := newFakeConn()
	h.ctrl.CreateNew(context.Background(), conn, h.token)

	msg := conn.expect(t, "chat_created")
	assert.Equal(t, "Chat 2", msg["chat_name"])
	id := int64(msg["chat_id"].(float64))
	assert.Equal(t, "/chat/"+strconv.FormatInt(id, 10), msg["redirect"])

	code, _ := conn.waitClosed(t)
	assert.Equal(t, protocol.CloseNormal, code)
	assert.Empty(t, conn.drain())
	assert.Equal(t, 0, h.registry.Len(), "create-new never registers")

	conv, err := h.store.GetOwnedConversation(context.Background(), id, h.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chat 2", conv.Title)

	// Numbering follows the user's conversation count.
	again := newFakeConn()
	h.ctrl.CreateNew(context.Background(), again, h.token)
	assert.Equal(t, "Chat 3", again.expect(t, "chat_created")["chat_name"])
}

func TestCreateNew_DoesNotProcessTurns(t *testing.T) {
	gen := newRecordingGenerator()
	h := newHarness(t, gen)

	conn := newFakeConn()
	conn.say("this should be ignored")
	h.ctrl.CreateNew(context.Background(), conn, h.token)

	conn.expect(t, "chat_created")
	assert.Empty(t, conn.drain())
	texts, _ := gen.calls()
	assert.Empty(t, texts)
}

func TestCreateNew_Failures(t *testing.T) {
	t.Run("bad token", func(t *testing.T) {
		h := newHarness(t, newRecordingGenerator())
		conn := newFakeConn()
		h.ctrl.CreateNew(context.Background(), conn, "nope")

		code, _ := conn.waitClosed(t)
		assert.Equal(t, protocol.CloseAuthFailed, code)
		assert.Empty(t, conn.drain())
	})

	t.Run("store failure", func(t *testing.T) {
		h := newHarness(t, newRecordingGenerator())
		h.store.FailOn("CreateConversation", errors.New("disk full"))
		conn := newFakeConn()
		h.ctrl.CreateNew(context.Background(), conn, h.token)

		code, reason := conn.waitClosed(t)
		assert.Equal(t, protocol.CloseInternal, code)
		assert.Equal(t, protocol.ReasonCreateFailed, reason)
		assert.Empty(t, conn.drain())
	})
}
