package relational

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/catalogq/internal/domain"
	"github.com/kailas-cloud/catalogq/internal/domain/model"
	"github.com/kailas-cloud/catalogq/internal/domain/query"
	"github.com/kailas-cloud/catalogq/internal/domain/result"
	"github.com/kailas-cloud/catalogq/internal/domain/schema"
)

// Hydrate loads the rows for keys, preserving key order, and attaches the
// requested relations. One lookup is issued per table; related tables are
// fetched concurrently. Keys with no row are dropped.
func (r *Repo) Hydrate(ctx context.Context, kind domain.Kind, keys []string, populate model.Populate) (result.Rows, error) {
	populate = query.Request{Kind: kind, Populate: populate}.NormalizedPopulate()
	switch kind {
	case domain.KindRecord:
		return r.hydrateRecords(ctx, keys, populate)
	case domain.KindGroup:
		return r.hydrateGroups(ctx, keys, populate)
	default:
		return result.Rows{}, &domain.SpecificationError{Reason: "unknown entity kind " + string(kind)}
	}
}

func (r *Repo) hydrateRecords(ctx context.Context, keys []string, p model.Populate) (result.Rows, error) {
	out := result.Rows{Kind: domain.KindRecord, Records: make([]model.Record, 0, len(keys))}
	if len(keys) == 0 {
		return out, nil
	}
	records, err := lookup(ctx, r, schema.TableRecords, keys, scanRecord)
	if err != nil {
		return result.Rows{}, err
	}

	var groupKeys []string
	if p.Group {
		seen := make(map[string]bool)
		for _, k := range keys {
			rec, ok := records[k]
			if !ok || rec.GroupID == nil || seen[*rec.GroupID] {
				continue
			}
			seen[*rec.GroupID] = true
			groupKeys = append(groupKeys, *rec.GroupID)
		}
	}

	var (
		groups      map[string]model.Group
		enrichments map[string]model.RecordEnrichment
		groupEnrich map[string]model.GroupEnrichment
	)
	g, gctx := errgroup.WithContext(ctx)
	if p.Group && len(groupKeys) > 0 {
		g.Go(func() (err error) {
			groups, err = lookup(gctx, r, schema.TableGroups, groupKeys, scanGroup)
			return err
		})
	}
	if p.Enrichment {
		g.Go(func() (err error) {
			enrichments, err = lookup(gctx, r, schema.TableRecordEnrichments, keys, scanRecordEnrichment)
			return err
		})
	}
	if p.GroupEnrichment && len(groupKeys) > 0 {
		g.Go(func() (err error) {
			groupEnrich, err = lookup(gctx, r, schema.TableGroupEnrichments, groupKeys, scanGroupEnrichment)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return result.Rows{}, err //nolint:wrapcheck // lookup errors are already wrapped
	}

	for _, k := range keys {
		rec, ok := records[k]
		if !ok {
			continue
		}
		if p.Group {
			rec.Group = model.Absent[model.Group]()
			if rec.GroupID != nil {
				if grp, found := groups[*rec.GroupID]; found {
					if p.GroupEnrichment {
						grp.Enrichment = relation(groupEnrich, grp.ID)
					}
					rec.Group = model.Present(grp)
				}
			}
		}
		if p.Enrichment {
			rec.Enrichment = relation(enrichments, rec.ID)
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}

func (r *Repo) hydrateGroups(ctx context.Context, keys []string, p model.Populate) (result.Rows, error) {
	out := result.Rows{Kind: domain.KindGroup, Groups: make([]model.Group, 0, len(keys))}
	if len(keys) == 0 {
		return out, nil
	}

	var (
		groups      map[string]model.Group
		enrichments map[string]model.GroupEnrichment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		groups, err = lookup(gctx, r, schema.TableGroups, keys, scanGroup)
		return err
	})
	if p.Enrichment {
		g.Go(func() (err error) {
			enrichments, err = lookup(gctx, r, schema.TableGroupEnrichments, keys, scanGroupEnrichment)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return result.Rows{}, err //nolint:wrapcheck // lookup errors are already wrapped
	}

	for _, k := range keys {
		grp, ok := groups[k]
		if !ok {
			continue
		}
		if p.Enrichment {
			grp.Enrichment = relation(enrichments, grp.ID)
		}
		out.Groups = append(out.Groups, grp)
	}
	return out, nil
}

func relation[T any](m map[string]T, key string) model.Relation[T] {
	if v, ok := m[key]; ok {
		return model.Present(v)
	}
	return model.Absent[T]()
}

// lookup fetches rows of table by key. Key sets above the chunk threshold
// are fetched in sequential chunks; the connection is released after each.
func lookup[T any](
	ctx context.Context, r *Repo, table string, keys []string,
	scan func(*sql.Rows) (string, T, error),
) (map[string]T, error) {
	t, _ := schema.TableByName(table)
	out := make(map[string]T, len(keys))
	step := len(keys)
	if len(keys) > r.chunkThreshold {
		step = r.chunkSize
		r.logger.Debug("Chunked lookup",
			zap.String("table", table),
			zap.Int("keys", len(keys)),
			zap.Int("chunk_size", step),
		)
	}
	for start := 0; start < len(keys); start += step {
		chunk := keys[start:min(start+step, len(keys))]
		if err := r.lookupChunk(ctx, t, chunk, func(rows *sql.Rows) error {
			k, v, err := scan(rows)
			if err != nil {
				return err
			}
			out[k] = v
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repo) lookupChunk(ctx context.Context, t *schema.Table, keys []string, each func(*sql.Rows) error) error {
	defer r.observe(stmtLookup, time.Now())

	plan := r.planner.Lookup(t, keys)
	rows, err := r.db.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return backendErr(stmtLookup+" "+t.Name, "", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := each(rows); err != nil {
			return backendErr(stmtLookup+" "+t.Name, "", err)
		}
	}
	if err := rows.Err(); err != nil {
		return backendErr(stmtLookup+" "+t.Name, "", err)
	}
	return nil
}
