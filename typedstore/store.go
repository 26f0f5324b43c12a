// Package typedstore implements the Typed Data Store: a generic
// collection of JSON objects layered on a DWN, identified by
// (tenant_did, id) and backed by a per-collection DWN protocol. The
// store owns its protocol-installation state and a latency-only TTL
// index; correctness never depends on the index, only on the DWN query
// it is rebuilt from.
package typedstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/sage-x-project/dwn-agent-core/dwn"
	"github.com/sage-x-project/dwn-agent-core/errs"
	"github.com/sage-x-project/dwn-agent-core/logger"
	"github.com/sage-x-project/dwn-agent-core/types"
)

// defaultIndexTTL is §6 Configuration's "IndexTTL" default.
const defaultIndexTTL = 2 * time.Hour

// SetOptions parameterizes Store.Set.
type SetOptions struct {
	TenantDID         string
	PreventDuplicates bool
}

// GetOptions/DeleteOptions parameterize Store.Get/Store.Delete.
type GetOptions struct{ TenantDID string }
type DeleteOptions struct{ TenantDID string }
type ListOptions struct{ TenantDID string }

type indexEntry struct {
	recordID string
	expires  time.Time
}

// Store is a generic Typed Data Store collection over T, the JSON shape
// persisted under collection's DWN protocol binding.
type Store[T any] struct {
	client     dwn.Client
	agentDID   string
	collection types.CollectionDescriptor
	indexTTL   time.Duration

	mu    sync.Mutex
	index map[string]indexEntry // tenant + "^" + id -> record id

	cache *lru.Cache[string, T]

	installed sync.Map // tenant did -> struct{}, protocol-install confirmation cache
	group     singleflight.Group
	schemas   *schemaCache

	log *logger.Logger
}

// WithSchemaProvider attaches schema validation: every decoded object is
// checked against the collection's schema URI before being returned or
// cached. Without one, Store performs no shape validation beyond JSON
// unmarshaling.
func (s *Store[T]) WithSchemaProvider(provider SchemaProvider) *Store[T] {
	s.schemas = newSchemaCache(provider)
	return s
}

// WithIndexTTL overrides the default index TTL (defaultIndexTTL, §6
// Configuration's documented "IndexTTL") used to cache DWN record-id
// lookups. A non-positive ttl is ignored, leaving the default in place.
func (s *Store[T]) WithIndexTTL(ttl time.Duration) *Store[T] {
	if ttl > 0 {
		s.indexTTL = ttl
	}
	return s
}

// New builds a Store bound to agentDID (used as the tenant when none is
// given to an operation) and client, the DWN facade every operation
// ultimately goes through.
func New[T any](client dwn.Client, agentDID string, collection types.CollectionDescriptor) (*Store[T], error) {
	cache, err := lru.New[string, T](256)
	if err != nil {
		return nil, fmt.Errorf("create object cache: %w", err)
	}
	return &Store[T]{
		client:     client,
		agentDID:   agentDID,
		collection: collection,
		indexTTL:   defaultIndexTTL,
		index:      make(map[string]indexEntry),
		cache:      cache,
		log:        logger.GetLogger().WithField("component", "typedstore").WithField("protocol", collection.Protocol),
	}, nil
}

func (s *Store[T]) tenant(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return s.agentDID
}

func indexKey(tenant, id string) string {
	return tenant + "^" + id
}

func (s *Store[T]) descriptorParams() map[string]any {
	return map[string]any{
		"protocol":     s.collection.Protocol,
		"protocolPath": s.collection.ProtocolPath,
		"schema":       s.collection.Schema,
		"dataFormat":   "application/json",
	}
}

// ensureProtocolInstalled issues a ProtocolsConfigure for tenant unless a
// ProtocolsQuery shows it already installed, short-circuited thereafter
// by the per-process installed set.
func (s *Store[T]) ensureProtocolInstalled(ctx context.Context, tenant string) error {
	if _, ok := s.installed.Load(tenant); ok {
		return nil
	}

	queryResp, err := s.client.Process(ctx, types.RequestEnvelope{
		Author:        s.agentDID,
		Target:        tenant,
		MessageType:   types.MessageProtocolsQuery,
		MessageParams: map[string]any{"protocol": s.collection.Protocol},
	})
	if err == nil && queryResp.Reply.Status.Code == types.StatusOK {
		s.installed.Store(tenant, struct{}{})
		return nil
	}

	configResp, err := s.client.Process(ctx, types.RequestEnvelope{
		Author:        s.agentDID,
		Target:        tenant,
		MessageType:   types.MessageProtocolsConfigure,
		MessageParams: map[string]any{"protocol": s.collection.Protocol},
	})
	if err != nil || (configResp.Reply.Status.Code != types.StatusAccepted && configResp.Reply.Status.Code != types.StatusAlreadyPresent) {
		return errs.ErrProtocolInstallFailed
	}
	s.installed.Store(tenant, struct{}{})
	return nil
}

func (s *Store[T]) Set(ctx context.Context, id string, data T, opts SetOptions) error {
	tenant := s.tenant(opts.TenantDID)

	if opts.PreventDuplicates {
		s.mu.Lock()
		_, exists := s.lookupIndexLocked(tenant, id)
		s.mu.Unlock()
		if exists {
			return errs.ErrDuplicateEntry
		}
	}

	if err := s.ensureProtocolInstalled(ctx, tenant); err != nil {
		return err
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode object: %w", err)
	}

	params := s.descriptorParams()
	params["id"] = id
	params["data"] = encodeData(encoded)

	resp, err := s.client.Process(ctx, types.RequestEnvelope{
		Author:        s.agentDID,
		Target:        tenant,
		MessageType:   types.MessageRecordsWrite,
		MessageParams: params,
	})
	if err != nil {
		return err
	}
	if resp.Reply.Status.Code != types.StatusAccepted && resp.Reply.Status.Code != types.StatusAlreadyPresent {
		return errs.ErrWriteFailed
	}

	s.mu.Lock()
	s.index[indexKey(tenant, id)] = indexEntry{recordID: resp.Message.RecordID, expires: time.Now().Add(s.indexTTL)}
	s.mu.Unlock()
	s.cache.Add(indexKey(tenant, id), data)
	return nil
}

func (s *Store[T]) lookupIndexLocked(tenant, id string) (string, bool) {
	entry, ok := s.index[indexKey(tenant, id)]
	if !ok || time.Now().After(entry.expires) {
		return "", false
	}
	return entry.recordID, true
}

// Get returns the stored object, or ok=false if no object exists for id.
func (s *Store[T]) Get(ctx context.Context, id string, opts GetOptions) (T, bool, error) {
	var zero T
	tenant := s.tenant(opts.TenantDID)
	key := indexKey(tenant, id)

	if v, ok := s.cache.Get(key); ok {
		return v, true, nil
	}

	s.mu.Lock()
	recordID, ok := s.lookupIndexLocked(tenant, id)
	s.mu.Unlock()

	if !ok {
		if err := s.rebuildIndex(ctx, tenant); err != nil {
			return zero, false, err
		}
		s.mu.Lock()
		recordID, ok = s.lookupIndexLocked(tenant, id)
		s.mu.Unlock()
		if !ok {
			return zero, false, nil
		}
	}

	resp, err := s.client.Process(ctx, types.RequestEnvelope{
		Target:        tenant,
		MessageType:   types.MessageRecordsRead,
		MessageParams: map[string]any{"recordId": recordID},
	})
	if err != nil {
		return zero, false, err
	}
	if resp.Reply.Status.Code == types.StatusNotFound || resp.Reply.Record == nil {
		return zero, false, errs.ErrDwnInconsistent
	}

	obj, err := s.decode(resp.Reply.Record)
	if err != nil {
		return zero, false, err
	}
	s.cache.Add(key, obj)
	return obj, true, nil
}

// rebuildIndex queries the DWN for every record of the collection and
// refreshes the index, collapsing concurrent rebuilds for the same
// tenant into a single DWN query.
func (s *Store[T]) rebuildIndex(ctx context.Context, tenant string) error {
	_, err, _ := s.group.Do(tenant, func() (any, error) {
		recs, err := s.listRecords(ctx, tenant)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		for _, rec := range recs {
			id := applicationID(rec)
			if id == "" {
				continue
			}
			s.index[indexKey(tenant, id)] = indexEntry{recordID: rec.RecordID, expires: time.Now().Add(s.indexTTL)}
		}
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

func (s *Store[T]) listRecords(ctx context.Context, tenant string) ([]types.Record, error) {
	resp, err := s.client.Process(ctx, types.RequestEnvelope{
		Target:        tenant,
		MessageType:   types.MessageRecordsQuery,
		MessageParams: s.descriptorParams(),
	})
	if err != nil {
		return nil, err
	}
	return resp.Reply.Entries, nil
}

func (s *Store[T]) List(ctx context.Context, opts ListOptions) ([]T, error) {
	tenant := s.tenant(opts.TenantDID)
	recs, err := s.listRecords(ctx, tenant)
	if err != nil {
		return nil, err
	}

	out := make([]T, 0, len(recs))
	s.mu.Lock()
	for _, rec := range recs {
		obj, err := s.decode(&rec)
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
		if id := applicationID(rec); id != "" {
			s.index[indexKey(tenant, id)] = indexEntry{recordID: rec.RecordID, expires: time.Now().Add(s.indexTTL)}
			s.cache.Add(indexKey(tenant, id), obj)
		}
	}
	s.mu.Unlock()
	return out, nil
}

func (s *Store[T]) Delete(ctx context.Context, id string, opts DeleteOptions) (bool, error) {
	tenant := s.tenant(opts.TenantDID)
	key := indexKey(tenant, id)

	s.mu.Lock()
	recordID, ok := s.lookupIndexLocked(tenant, id)
	s.mu.Unlock()
	if !ok {
		if err := s.rebuildIndex(ctx, tenant); err != nil {
			return false, err
		}
		s.mu.Lock()
		recordID, ok = s.lookupIndexLocked(tenant, id)
		s.mu.Unlock()
		if !ok {
			return false, nil
		}
	}

	resp, err := s.client.Process(ctx, types.RequestEnvelope{
		Target:        tenant,
		MessageType:   types.MessageRecordsDelete,
		MessageParams: map[string]any{"recordId": recordID},
	})
	if err != nil {
		return false, err
	}
	switch resp.Reply.Status.Code {
	case types.StatusAccepted:
		s.mu.Lock()
		delete(s.index, key)
		s.mu.Unlock()
		s.cache.Remove(key)
		return true, nil
	case types.StatusNotFound:
		return false, nil
	default:
		return false, errs.ErrDeleteFailed
	}
}

// decode base64url-decodes a record's data and validates its shape.
// Records lacking EncodedData are the Typed Data Store's "object too
// large" signal: the store requires every member fit in a single DWN
// query reply.
func (s *Store[T]) decode(rec *types.Record) (T, error) {
	var zero T
	if rec.EncodedData == "" {
		return zero, errs.ErrObjectTooLarge
	}
	raw, err := b64Decode(rec.EncodedData)
	if err != nil {
		s.log.Warnf("decode object: %v", err)
		return zero, errs.ErrDwnInconsistent
	}
	if err := s.schemas.validate(s.collection.Schema, raw); err != nil {
		s.log.Warnf("schema validation: %v", err)
		return zero, errs.ErrDwnInconsistent
	}
	var obj T
	if err := json.Unmarshal(raw, &obj); err != nil {
		s.log.Warnf("unmarshal object: %v", err)
		return zero, errs.ErrDwnInconsistent
	}
	return obj, nil
}

// applicationID recovers the application-level id a record was written
// under. The node stores it nowhere explicit in Descriptor, so the id is
// carried via the record's filter map set at write time.
func applicationID(rec types.Record) string {
	if rec.Descriptor.Filter != nil {
		return rec.Descriptor.Filter["id"]
	}
	return ""
}
