// Package git implements the protocol engine of a Git backend: the
// content-addressed object model, the pack file codec with delta support, the
// pkt-line wire framing, and the ref advertisement / want-have negotiation
// used by the smart transports.
//
// Transports (HTTP, SSH) and persistence are external collaborators: they
// hand the engine fully buffered bytes and an object store, and stream out
// whatever it produces. The engine holds no connections and does no I/O of
// its own, so independent invocations can run concurrently.
package git

import (
	"context"
	"fmt"

	"github.com/zhleyai/git/log"
	"github.com/zhleyai/git/protocol"
	"github.com/zhleyai/git/protocol/hash"
	"github.com/zhleyai/git/protocol/object"
)

// Engine is the capability surface transports consume. It is an interface
// rather than a base type: any component satisfying it can serve a
// transport, and tests can substitute one operation at a time.
type Engine interface {
	// ParsePack verifies and decodes a pack, resolving delta entries to
	// full objects. Bases outside the pack (thin packs) are looked up in
	// the configured object storage.
	ParsePack(ctx context.Context, data []byte) ([]*protocol.PackfileObject, error)
	// CreatePack serializes objects as a pack ParsePack can read back.
	CreatePack(ctx context.Context, objects []*protocol.PackfileObject) ([]byte, error)
	// ParsePktLine decodes pkt-line framed text lines up to a flush-pkt.
	ParsePktLine(data []byte) ([]string, error)
	// CreatePktLine frames text lines as pkt-lines, flush-terminated.
	CreatePktLine(lines []string) []byte
	// FormatRefAdvertisement builds the advertisement opening a fetch or
	// push exchange.
	FormatRefAdvertisement(refs []protocol.AdvertisedRef, capabilities []string) []byte
	// FormatACK and FormatNAK build single negotiation response lines.
	FormatACK(id hash.Hash) []byte
	FormatNAK() []byte
}

type engine struct {
	logger  log.Logger
	storage PackfileStorage
}

// New creates an Engine. By default it logs nowhere and has no object
// storage, which is enough for self-contained packs; configure
// WithPackfileStorage (or a per-call context override) to resolve thin
// packs.
func New(options ...Option) (Engine, error) {
	e := &engine{logger: log.Noop{}}
	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *engine) ParsePack(ctx context.Context, data []byte) ([]*protocol.PackfileObject, error) {
	reader, err := protocol.ParsePackfile(data)
	if err != nil {
		return nil, fmt.Errorf("parsing packfile: %w", err)
	}

	e.logger.Debug("parsing pack", "declared_objects", reader.ObjectCount(), "bytes", len(data))

	objects, err := reader.ResolveObjects(e.baseLookup(ctx))
	if err != nil {
		return nil, fmt.Errorf("resolving pack objects: %w", err)
	}
	return objects, nil
}

// baseLookup adapts the configured storage into the codec's thin-pack base
// resolver. The context override wins over the engine-wide storage.
func (e *engine) baseLookup(ctx context.Context) protocol.BaseLookup {
	storage := GetPackfileStorageFromContext(ctx)
	if storage == nil {
		storage = e.storage
	}
	if storage == nil {
		return nil
	}
	return func(id hash.Hash) (object.Type, []byte, bool) {
		obj, ok := storage.Get(id)
		if !ok {
			return object.TypeInvalid, nil, false
		}
		return obj.Type, obj.Data, true
	}
}

func (e *engine) CreatePack(ctx context.Context, objects []*protocol.PackfileObject) ([]byte, error) {
	e.logger.Debug("creating pack", "objects", len(objects))
	return protocol.CreatePack(ctx, objects)
}

func (e *engine) ParsePktLine(data []byte) ([]string, error) {
	return protocol.ParsePktLines(data)
}

func (e *engine) CreatePktLine(lines []string) []byte {
	return protocol.FormatPktLines(lines)
}

func (e *engine) FormatRefAdvertisement(refs []protocol.AdvertisedRef, capabilities []string) []byte {
	return protocol.FormatRefAdvertisement(refs, capabilities)
}

func (e *engine) FormatACK(id hash.Hash) []byte {
	return protocol.FormatACK(id)
}

func (e *engine) FormatNAK() []byte {
	return protocol.FormatNAK()
}
