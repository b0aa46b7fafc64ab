package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// startTestServer runs a server on a random port
func startTestServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{
		Port:   0, // Use random available port
		Logger: log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Errorf("Failed to stop server: %v", err)
		}
	})

	// Give server time to start
	time.Sleep(100 * time.Millisecond)
	return server
}

// dialTestClient connects a WebSocket client and consumes the welcome message
func dialTestClient(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Failed to read welcome message: %v", err)
	}
	return conn
}

// readMessage reads and decodes one broadcast
func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := startTestServer(t)

	if server.GetAddr() == "" {
		t.Fatal("Server address is empty")
	}
}

func TestWebSocketConnection(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if count := server.ClientCount(); count != 1 {
		t.Errorf("ClientCount() = %d, want 1", count)
	}

	// Welcome message arrives first
	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeQueueUpdate {
		t.Errorf("welcome type = %s, want %s", msg.Type, MessageTypeQueueUpdate)
	}
}

func TestBroadcastDrainComplete(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialTestClient(t, ctx, server)

	server.BroadcastDrainComplete(DrainCompleteData{
		Synced:       3,
		Failed:       1,
		StillPending: 2,
		Duration:     40 * time.Millisecond,
	})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeDrainComplete {
		t.Fatalf("type = %s, want %s", msg.Type, MessageTypeDrainComplete)
	}

	var data DrainCompleteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal drain data: %v", err)
	}
	if data.Synced != 3 || data.Failed != 1 || data.StillPending != 2 {
		t.Errorf("drain data = %+v, want synced=3 failed=1 pending=2", data)
	}
}

func TestBroadcastConnectivity(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialTestClient(t, ctx, server)

	server.BroadcastConnectivity(ConnectivityData{Online: true})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeConnectivity {
		t.Fatalf("type = %s, want %s", msg.Type, MessageTypeConnectivity)
	}

	var data ConnectivityData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal connectivity data: %v", err)
	}
	if !data.Online {
		t.Error("Online = false, want true")
	}
}

func TestBroadcastPoison(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dialTestClient(t, ctx, server)

	server.BroadcastPoison(PoisonData{
		MutationID: 42,
		Op:         "update_goal",
		EntityID:   "goal-1",
		Error:      "status 422",
	})

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypePoison {
		t.Fatalf("type = %s, want %s", msg.Type, MessageTypePoison)
	}

	var data PoisonData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal poison data: %v", err)
	}
	if data.MutationID != 42 || data.Op != "update_goal" || data.EntityID != "goal-1" {
		t.Errorf("poison data = %+v, want mutation 42 update_goal goal-1", data)
	}
}

func TestMultipleClients(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	numClients := 3
	conns := make([]*websocket.Conn, numClients)
	for i := 0; i < numClients; i++ {
		conns[i] = dialTestClient(t, ctx, server)
	}

	if count := server.ClientCount(); count != numClients {
		t.Errorf("ClientCount() = %d, want %d", count, numClients)
	}

	server.BroadcastQueueUpdate(QueueUpdateData{Pending: 5, Consumed: 7})

	for i, conn := range conns {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeQueueUpdate {
			t.Errorf("client %d: type = %s, want %s", i, msg.Type, MessageTypeQueueUpdate)
		}
	}
}
