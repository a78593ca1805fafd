package archive

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/block/coldarchive/pkg/source"
	"github.com/siddontang/loggers"
)

// Pruner deletes archived partitions from the source.
type Pruner struct {
	source source.Store
	logger loggers.Advanced
}

func NewPruner(src source.Store, logger loggers.Advanced) *Pruner {
	return &Pruner{source: src, logger: logger}
}

// Prune deletes the rows of partition d and reclaims their space. It must
// only be called once the partition has been validated.
func (p *Pruner) Prune(ctx context.Context, scope source.Scope, d civil.Date) (int64, error) {
	deleted, err := p.source.Delete(ctx, scope.Partition(d))
	if err != nil {
		return deleted, err
	}
	p.logger.Infof("deleted %d rows of %s %s", deleted, scope.Table, d)
	if err = p.source.Reclaim(ctx, scope.Table); err != nil {
		return deleted, err
	}

	return deleted, nil
}
