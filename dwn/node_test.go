package dwn

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/sage-x-project/dwn-agent-core/types"
)

func TestRecordsWriteReadQueryDelete(t *testing.T) {
	ctx := context.Background()
	node := NewNode()

	writeReq := types.RequestEnvelope{
		Author:      "did:example:alice",
		MessageType: types.MessageRecordsWrite,
		MessageParams: map[string]any{
			"protocol":     "https://example.org/notes",
			"protocolPath": "note",
			"schema":       "https://example.org/schemas/note",
			"dataFormat":   "application/json",
			"id":           "note-1",
			"data":         b64urlEncodeData([]byte(`{"title":"hi"}`)),
		},
	}
	resp, err := node.Process(ctx, writeReq)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp.Reply.Status.Code != types.StatusAccepted {
		t.Fatalf("want 202, got %d", resp.Reply.Status.Code)
	}
	recordID := resp.Message.RecordID

	readReq := types.RequestEnvelope{
		Target:        "did:example:alice",
		MessageType:   types.MessageRecordsRead,
		MessageParams: map[string]any{"recordId": recordID},
	}
	readResp, err := node.Process(ctx, readReq)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if readResp.Reply.Status.Code != types.StatusOK || readResp.Reply.Record == nil {
		t.Fatalf("unexpected read reply: %+v", readResp.Reply)
	}
	decoded, err := b64urlDecodeData(readResp.Reply.Record.EncodedData)
	if err != nil || string(decoded) != `{"title":"hi"}` {
		t.Fatalf("unexpected data: %s err=%v", decoded, err)
	}

	// overwrite with same application id: logical record id stays stable
	writeReq.MessageParams["data"] = b64urlEncodeData([]byte(`{"title":"bye"}`))
	resp2, err := node.Process(ctx, writeReq)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if resp2.Message.RecordID != recordID {
		t.Fatalf("record id should be stable across writes, got %s want %s", resp2.Message.RecordID, recordID)
	}

	queryReq := types.RequestEnvelope{
		Target:        "did:example:alice",
		MessageType:   types.MessageRecordsQuery,
		MessageParams: map[string]any{"protocol": "https://example.org/notes"},
	}
	queryResp, err := node.Process(ctx, queryReq)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(queryResp.Reply.Entries) != 1 {
		t.Fatalf("want 1 entry after overwrite, got %d", len(queryResp.Reply.Entries))
	}

	deleteReq := types.RequestEnvelope{
		Target:        "did:example:alice",
		MessageType:   types.MessageRecordsDelete,
		MessageParams: map[string]any{"recordId": recordID},
	}
	delResp, err := node.Process(ctx, deleteReq)
	if err != nil || delResp.Reply.Status.Code != types.StatusAccepted {
		t.Fatalf("delete: resp=%+v err=%v", delResp, err)
	}

	if _, err := node.Process(ctx, readReq); err != nil {
		t.Fatalf("read after delete should not error: %v", err)
	}
	afterDelete, _ := node.Process(ctx, readReq)
	if afterDelete.Reply.Status.Code != types.StatusNotFound {
		t.Fatalf("want 404 after delete, got %d", afterDelete.Reply.Status.Code)
	}
}

func TestProtocolsConfigureQuery(t *testing.T) {
	ctx := context.Background()
	node := NewNode()

	_, err := node.Process(ctx, types.RequestEnvelope{
		Author:        "did:example:alice",
		MessageType:   types.MessageProtocolsConfigure,
		MessageParams: map[string]any{"protocol": "https://example.org/notes"},
	})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	resp, err := node.Process(ctx, types.RequestEnvelope{
		Target:        "did:example:alice",
		MessageType:   types.MessageProtocolsQuery,
		MessageParams: map[string]any{"protocol": "https://example.org/notes"},
	})
	if err != nil || resp.Reply.Status.Code != types.StatusOK {
		t.Fatalf("expected installed protocol, got resp=%+v err=%v", resp, err)
	}

	miss, _ := node.Process(ctx, types.RequestEnvelope{
		Target:        "did:example:alice",
		MessageType:   types.MessageProtocolsQuery,
		MessageParams: map[string]any{"protocol": "https://example.org/unknown"},
	})
	if miss.Reply.Status.Code != types.StatusNotFound {
		t.Fatalf("want 404 for unconfigured protocol, got %d", miss.Reply.Status.Code)
	}
}

func TestMessagesQueryCursorPagination(t *testing.T) {
	ctx := context.Background()
	node := NewNode()

	for i := 0; i < 3; i++ {
		_, err := node.Process(ctx, types.RequestEnvelope{
			Author:      "did:example:alice",
			MessageType: types.MessageRecordsWrite,
			MessageParams: map[string]any{
				"protocol":     "https://example.org/notes",
				"protocolPath": "note",
				"id":           "n" + string(rune('0'+i)),
				"data":         b64urlEncodeData([]byte("v")),
			},
		})
		if err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	first, err := node.Process(ctx, types.RequestEnvelope{
		Target:        "did:example:alice",
		MessageType:   types.MessageMessagesQuery,
		MessageParams: map[string]any{"cursor": ""},
	})
	if err != nil || len(first.Reply.Entries) != 3 {
		t.Fatalf("expected 3 entries from empty cursor, got %+v err=%v", first, err)
	}

	second, err := node.Process(ctx, types.RequestEnvelope{
		Target:        "did:example:alice",
		MessageType:   types.MessageMessagesQuery,
		MessageParams: map[string]any{"cursor": first.Reply.Cursor},
	})
	if err != nil || len(second.Reply.Entries) != 0 {
		t.Fatalf("expected no new entries on second pull, got %+v err=%v", second, err)
	}
}

func TestSubscribeReceivesWrites(t *testing.T) {
	ctx := context.Background()
	node := NewNode()

	ch, cancel, err := node.Subscribe(ctx, "did:example:alice")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	_, err = node.Process(ctx, types.RequestEnvelope{
		Author:      "did:example:alice",
		MessageType: types.MessageRecordsWrite,
		MessageParams: map[string]any{
			"protocol": "https://example.org/notes",
			"id":       "n0",
			"data":     b64urlEncodeData([]byte("v")),
		},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case rec := <-ch:
		if rec.Author != "did:example:alice" {
			t.Fatalf("unexpected record author: %s", rec.Author)
		}
	default:
		t.Fatal("expected a record on the subscription channel")
	}
}

func TestAgentClientSendOverHTTP(t *testing.T) {
	ctx := context.Background()
	serverNode := NewNode()
	server := NewServer(serverNode)
	ts := httptest.NewServer(server)
	defer ts.Close()

	client := NewAgentClient(NewNode())
	resp, err := client.Send(ctx, ts.URL, types.RequestEnvelope{
		Author:      "did:example:bob",
		MessageType: types.MessageRecordsWrite,
		MessageParams: map[string]any{
			"protocol": "https://example.org/notes",
			"id":       "n0",
			"data":     b64urlEncodeData([]byte("v")),
		},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if resp.Reply.Status.Code != types.StatusAccepted {
		t.Fatalf("want 202, got %d", resp.Reply.Status.Code)
	}

	readResp, err := serverNode.Process(ctx, types.RequestEnvelope{
		Target:        "did:example:bob",
		MessageType:   types.MessageRecordsRead,
		MessageParams: map[string]any{"recordId": resp.Message.RecordID},
	})
	if err != nil || readResp.Reply.Status.Code != types.StatusOK {
		t.Fatalf("record should be visible on the server node: resp=%+v err=%v", readResp, err)
	}
}
