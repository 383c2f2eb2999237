package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/internal/domain/repository"
	"github.com/moroshma/jstail/pkg/logger"
)

// BrokerSource hands out the connected broker, blocking until there is one.
// *link.Link implements it.
type BrokerSource interface {
	Wait(ctx context.Context) (repository.Broker, error)
}

// Emitter sends events to the presentation layer. *router.Router implements it.
type Emitter interface {
	Emit(ctx context.Context, ev entity.Event) bool
}

// Directory resolves the stream catalog of the connected broker
type Directory struct {
	source      BrokerSource
	traceStream string
	diagnostic  string
	logger      *logger.Logger
}

// NewDirectory creates a directory that hides traceStream and every
// consumer described as diagnostic.
func NewDirectory(source BrokerSource, traceStream, diagnostic string, log *logger.Logger) *Directory {
	return &Directory{
		source:      source,
		traceStream: traceStream,
		diagnostic:  diagnostic,
		logger:      log.Named("directory"),
	}
}

// ListStreams returns the user streams sorted by name.
func (d *Directory) ListStreams(ctx context.Context) ([]entity.StreamDescriptor, error) {
	broker, err := d.source.Wait(ctx)
	if err != nil {
		return nil, err
	}

	all, err := broker.ListStreams(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list streams: %w", err)
	}

	streams := make([]entity.StreamDescriptor, 0, len(all))
	for _, s := range all {
		if s.Name == d.traceStream {
			continue
		}
		streams = append(streams, s)
	}

	c := newCollator()
	sort.SliceStable(streams, func(i, j int) bool {
		return c.less(streams[i].Name, streams[j].Name)
	})

	d.logger.Debug("Resolved stream directory",
		logger.Int("streams", len(streams)),
		logger.Int("hidden", len(all)-len(streams)),
	)
	return streams, nil
}

// ListConsumers returns the consumers of stream that this tool did not
// create, sorted by name.
func (d *Directory) ListConsumers(ctx context.Context, stream string) ([]entity.ConsumerDescriptor, error) {
	broker, err := d.source.Wait(ctx)
	if err != nil {
		return nil, err
	}

	all, err := broker.ListConsumers(ctx, stream)
	if err != nil {
		return nil, fmt.Errorf("failed to list consumers of %s: %w", stream, err)
	}

	consumers := make([]entity.ConsumerDescriptor, 0, len(all))
	for _, c := range all {
		if c.Description == d.diagnostic {
			continue
		}
		consumers = append(consumers, c)
	}

	c := newCollator()
	sort.SliceStable(consumers, func(i, j int) bool {
		return c.less(consumers[i].Name, consumers[j].Name)
	})
	return consumers, nil
}

// collator is not safe for concurrent use; build one per call.
type collator struct {
	c *collate.Collator
}

func newCollator() collator {
	return collator{c: collate.New(language.Und)}
}

// less orders by the root locale and falls back to byte order so that the
// result is total.
func (c collator) less(a, b string) bool {
	if r := c.c.CompareString(a, b); r != 0 {
		return r < 0
	}
	return strings.Compare(a, b) < 0
}
