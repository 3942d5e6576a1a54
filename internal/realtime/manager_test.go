package realtime

import "testing"

func TestRegisterIndexesByMatterAndUser(t *testing.T) {
	m := NewManager()
	c := m.Register("conn-1", "user-1", "matter-1", nil)

	if c.ID != "conn-1" || c.UserID != "user-1" || c.MatterID != "matter-1" {
		t.Fatalf("unexpected connection fields: %+v", c)
	}
	if m.MatterConnectionCount("matter-1") != 1 {
		t.Errorf("expected 1 connection for matter-1, got %d", m.MatterConnectionCount("matter-1"))
	}
	if m.TotalConnections() != 1 {
		t.Errorf("expected 1 total connection, got %d", m.TotalConnections())
	}
}

func TestUnregisterRemovesFromAllIndexes(t *testing.T) {
	m := NewManager()
	c := m.Register("conn-1", "user-1", "matter-1", nil)
	m.Unregister(c)

	if m.MatterConnectionCount("matter-1") != 0 {
		t.Errorf("expected 0 connections after unregister, got %d", m.MatterConnectionCount("matter-1"))
	}
	if m.TotalConnections() != 0 {
		t.Errorf("expected 0 total connections after unregister, got %d", m.TotalConnections())
	}

	select {
	case _, ok := <-c.Send:
		if ok {
			t.Error("expected Send channel to be closed")
		}
	default:
		t.Error("expected Send channel read to return immediately once closed")
	}
}

func TestBroadcastToMatterOnlyReachesThatMatter(t *testing.T) {
	m := NewManager()
	a := m.Register("conn-a", "user-a", "matter-1", nil)
	m.Register("conn-b", "user-b", "matter-2", nil)

	sent := m.BroadcastToMatter("matter-1", []byte("hello"))
	if sent != 1 {
		t.Errorf("expected 1 message sent, got %d", sent)
	}

	select {
	case msg := <-a.Send:
		if string(msg) != "hello" {
			t.Errorf("got message %q, want %q", msg, "hello")
		}
	default:
		t.Error("expected a message queued on matter-1's connection")
	}
}

func TestBroadcastDropsWhenSendBufferFull(t *testing.T) {
	m := NewManager()
	c := m.Register("conn-a", "user-a", "matter-1", nil)

	capacity := cap(c.Send)
	for i := 0; i < capacity; i++ {
		if sent := m.BroadcastToMatter("matter-1", []byte("x")); sent != 1 {
			t.Fatalf("expected message %d to be queued, got sent=%d", i, sent)
		}
	}

	// The buffer is now full; one more broadcast should drop rather than block.
	sent := m.BroadcastToMatter("matter-1", []byte("overflow"))
	if sent != 0 {
		t.Errorf("expected overflow broadcast to drop (sent=0), got sent=%d", sent)
	}
}

func TestSendToUserReachesEveryMatterForThatUser(t *testing.T) {
	m := NewManager()
	m.Register("conn-a", "user-1", "matter-1", nil)
	m.Register("conn-b", "user-1", "matter-2", nil)
	m.Register("conn-c", "user-2", "matter-1", nil)

	sent := m.SendToUser("user-1", []byte("hi"))
	if sent != 2 {
		t.Errorf("expected 2 messages sent to user-1's connections, got %d", sent)
	}
}

func TestMultipleConnectionsSameMatterDifferentUsers(t *testing.T) {
	m := NewManager()
	m.Register("conn-a", "user-1", "matter-1", nil)
	m.Register("conn-b", "user-2", "matter-1", nil)

	if m.MatterConnectionCount("matter-1") != 2 {
		t.Errorf("expected 2 connections on matter-1, got %d", m.MatterConnectionCount("matter-1"))
	}
}
