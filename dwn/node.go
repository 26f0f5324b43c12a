package dwn

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/internal/wsbus"
	"github.com/sage-x-project/dwn-agent-core/types"
)

// logEntry is one append-only event-log entry for an author's message log:
// the message that produced it and the record it belongs to.
type logEntry struct {
	messageCID string
	record     types.Record
	deleted    bool
}

// Node is an in-process stand-in for a real DWN: an append-only per-author
// message log plus the record/protocol indexes a real node's storage
// layer would maintain. It implements Client.Process directly; its Send
// has no remote transport and simply calls Process (AgentClient is the
// Client that sends over HTTP).
type Node struct {
	mu sync.Mutex

	logs       map[string][]logEntry          // author -> ordered log
	records    map[string]map[string]*logEntry // author -> recordID -> latest entry
	protocols  map[string]map[string]bool      // author -> protocol -> installed

	subscribers map[string][]chan types.Record

	// hubs fans the same notifications out to websocket-connected
	// subscribers (remote RecordsSubscribe callers), one hub per author.
	hubs map[string]*wsbus.Hub
}

func NewNode() *Node {
	return &Node{
		logs:        make(map[string][]logEntry),
		records:     make(map[string]map[string]*logEntry),
		protocols:   make(map[string]map[string]bool),
		subscribers: make(map[string][]chan types.Record),
		hubs:        make(map[string]*wsbus.Hub),
	}
}

// Hub returns the websocket fan-out hub for author, creating it on first
// use. Server mounts this behind an upgrade endpoint for remote
// RecordsSubscribe callers.
func (n *Node) Hub(author string) *wsbus.Hub {
	n.mu.Lock()
	defer n.mu.Unlock()
	h, ok := n.hubs[author]
	if !ok {
		h = wsbus.NewHub()
		n.hubs[author] = h
	}
	return h
}

func (n *Node) Process(ctx context.Context, req types.RequestEnvelope) (*types.ResponseEnvelope, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch req.MessageType {
	case types.MessageRecordsWrite:
		return n.recordsWrite(req)
	case types.MessageRecordsRead:
		return n.recordsRead(req)
	case types.MessageRecordsQuery:
		return n.recordsQuery(req)
	case types.MessageRecordsDelete:
		return n.recordsDelete(req)
	case types.MessageProtocolsConfigure:
		return n.protocolsConfigure(req)
	case types.MessageProtocolsQuery:
		return n.protocolsQuery(req)
	case types.MessageMessagesQuery:
		return n.messagesQuery(req)
	case types.MessageMessagesRead:
		return n.messagesRead(req)
	default:
		return nil, errs.ErrMethodNotSupported
	}
}

// Send ignores dwnURL and serves req through Process: a Node has no
// remote transport, so this is a local loopback. AgentClient.Send is the
// HTTP implementation.
func (n *Node) Send(ctx context.Context, dwnURL string, req types.RequestEnvelope) (*types.ResponseEnvelope, error) {
	return n.Process(ctx, req)
}

func (n *Node) Subscribe(ctx context.Context, author string) (<-chan types.Record, func(), error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch := make(chan types.Record, 16)
	n.subscribers[author] = append(n.subscribers[author], ch)
	cancel := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subs := n.subscribers[author]
		for i, c := range subs {
			if c == ch {
				n.subscribers[author] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
	return ch, cancel, nil
}

func (n *Node) notify(author string, rec types.Record) {
	for _, ch := range n.subscribers[author] {
		select {
		case ch <- rec:
		default:
		}
	}
	if h, ok := n.hubs[author]; ok {
		if payload, err := json.Marshal(rec); err == nil {
			h.Publish(payload)
		}
	}
}

func recordID(author string, d types.Descriptor, applicationID string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s", author, d.Protocol, d.ProtocolPath, d.Schema, d.DataFormat, applicationID)
	return hex.EncodeToString(h.Sum(nil))
}

func messageCID(recordID string, data []byte, seq int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|", recordID, seq)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func (n *Node) recordsWrite(req types.RequestEnvelope) (*types.ResponseEnvelope, error) {
	var rec types.Record
	if req.RawMessage != nil {
		rec = *req.RawMessage
	} else {
		d := descriptorFromParams(req.MessageParams)
		appID, _ := req.MessageParams["id"].(string)
		if appID != "" {
			if d.Filter == nil {
				d.Filter = make(map[string]string)
			}
			d.Filter["id"] = appID
		}
		rec.Descriptor = d
		rec.Author = req.Author
		if data, ok := req.MessageParams["data"].(string); ok {
			rec.EncodedData = data
		}
		rec.RecordID = recordID(req.Author, d, appID)
	}
	if rec.RecordID == "" {
		rec.RecordID = recordID(req.Author, rec.Descriptor, "")
	}
	rec.Author = req.Author

	if n.records[req.Author] == nil {
		n.records[req.Author] = make(map[string]*logEntry)
	}
	seq := len(n.logs[req.Author])
	mcid := messageCID(rec.RecordID, []byte(rec.EncodedData), seq)

	entry := logEntry{messageCID: mcid, record: rec}
	n.logs[req.Author] = append(n.logs[req.Author], entry)
	n.records[req.Author][rec.RecordID] = &n.logs[req.Author][len(n.logs[req.Author])-1]

	n.notify(req.Author, rec)

	return &types.ResponseEnvelope{
		Message:    &rec,
		MessageCID: mcid,
		Reply:      types.Reply{Status: types.ReplyStatus{Code: types.StatusAccepted}},
	}, nil
}

func descriptorFromParams(params map[string]any) types.Descriptor {
	var d types.Descriptor
	if v, ok := params["protocol"].(string); ok {
		d.Protocol = v
	}
	if v, ok := params["protocolPath"].(string); ok {
		d.ProtocolPath = v
	}
	if v, ok := params["schema"].(string); ok {
		d.Schema = v
	}
	if v, ok := params["dataFormat"].(string); ok {
		d.DataFormat = v
	}
	return d
}

func (n *Node) recordsRead(req types.RequestEnvelope) (*types.ResponseEnvelope, error) {
	recordIDParam, _ := req.MessageParams["recordId"].(string)
	byAuthor := n.records[req.Target]
	if byAuthor == nil {
		return notFoundReply(), nil
	}
	entry, ok := byAuthor[recordIDParam]
	if !ok || entry.deleted {
		return notFoundReply(), nil
	}
	rec := entry.record
	return &types.ResponseEnvelope{
		Reply: types.Reply{Status: types.ReplyStatus{Code: types.StatusOK}, Record: &rec},
	}, nil
}

func (n *Node) recordsQuery(req types.RequestEnvelope) (*types.ResponseEnvelope, error) {
	byAuthor := n.records[req.Target]
	d := descriptorFromParams(req.MessageParams)

	var ids []string
	for id, entry := range byAuthor {
		if entry.deleted {
			continue
		}
		if matchesCollection(entry.record.Descriptor, d) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	entries := make([]types.Record, 0, len(ids))
	for _, id := range ids {
		entries = append(entries, byAuthor[id].record)
	}
	return &types.ResponseEnvelope{
		Reply: types.Reply{Status: types.ReplyStatus{Code: types.StatusOK}, Entries: entries},
	}, nil
}

func matchesCollection(rec, filter types.Descriptor) bool {
	if filter.Protocol != "" && rec.Protocol != filter.Protocol {
		return false
	}
	if filter.ProtocolPath != "" && rec.ProtocolPath != filter.ProtocolPath {
		return false
	}
	if filter.Schema != "" && rec.Schema != filter.Schema {
		return false
	}
	return true
}

func (n *Node) recordsDelete(req types.RequestEnvelope) (*types.ResponseEnvelope, error) {
	recordIDParam, _ := req.MessageParams["recordId"].(string)
	byAuthor := n.records[req.Target]
	if byAuthor == nil {
		return notFoundReply(), nil
	}
	entry, ok := byAuthor[recordIDParam]
	if !ok || entry.deleted {
		return notFoundReply(), nil
	}
	entry.deleted = true
	return &types.ResponseEnvelope{
		Reply: types.Reply{Status: types.ReplyStatus{Code: types.StatusAccepted}},
	}, nil
}

func (n *Node) protocolsConfigure(req types.RequestEnvelope) (*types.ResponseEnvelope, error) {
	protocol, _ := req.MessageParams["protocol"].(string)
	if n.protocols[req.Author] == nil {
		n.protocols[req.Author] = make(map[string]bool)
	}
	n.protocols[req.Author][protocol] = true
	return &types.ResponseEnvelope{
		Reply: types.Reply{Status: types.ReplyStatus{Code: types.StatusAccepted}},
	}, nil
}

func (n *Node) protocolsQuery(req types.RequestEnvelope) (*types.ResponseEnvelope, error) {
	protocol, _ := req.MessageParams["protocol"].(string)
	installed := n.protocols[req.Target][protocol]
	code := types.StatusNotFound
	if installed {
		code = types.StatusOK
	}
	return &types.ResponseEnvelope{Reply: types.Reply{Status: types.ReplyStatus{Code: code}}}, nil
}

// messagesQuery serves the sync engine's event-log pull: all message CIDs
// for target after the given cursor (an opaque log-position string).
func (n *Node) messagesQuery(req types.RequestEnvelope) (*types.ResponseEnvelope, error) {
	cursor, _ := req.MessageParams["cursor"].(string)
	log := n.logs[req.Target]

	start := 0
	if cursor != "" {
		var parsed int
		if _, err := fmt.Sscanf(cursor, "%d", &parsed); err == nil {
			start = parsed
		}
	}
	if start > len(log) {
		start = len(log)
	}

	entries := make([]types.Record, 0, len(log)-start)
	for _, e := range log[start:] {
		entries = append(entries, types.Record{RecordID: e.record.RecordID, Descriptor: e.record.Descriptor, Author: e.record.Author})
		entries[len(entries)-1].Descriptor.DataCID = e.messageCID
	}
	return &types.ResponseEnvelope{
		Reply: types.Reply{
			Status:  types.ReplyStatus{Code: types.StatusOK},
			Entries: entries,
			Cursor:  fmt.Sprintf("%d", len(log)),
		},
	}, nil
}

func (n *Node) messagesRead(req types.RequestEnvelope) (*types.ResponseEnvelope, error) {
	messageCIDParam, _ := req.MessageParams["messageCid"].(string)
	for _, e := range n.logs[req.Target] {
		if e.messageCID == messageCIDParam {
			rec := e.record
			return &types.ResponseEnvelope{
				Reply: types.Reply{Status: types.ReplyStatus{Code: types.StatusOK}, Record: &rec},
			}, nil
		}
	}
	return notFoundReply(), nil
}

func notFoundReply() *types.ResponseEnvelope {
	return &types.ResponseEnvelope{Reply: types.Reply{Status: types.ReplyStatus{Code: types.StatusNotFound}}}
}

func b64urlEncodeData(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func b64urlDecodeData(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
