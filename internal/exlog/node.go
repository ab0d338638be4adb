package exlog

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/exlog/internal/core/domain"
	"github.com/vietddude/exlog/internal/infra/storage"
	"github.com/vietddude/exlog/internal/metrics"
)

// writeNode stores one element of the chain. The independent upserts run concurrently; the
// instance insert waits only for the species upsert, and the web context rows only for the
// instance id.
func (l *Logger) writeNode(
	ctx context.Context,
	sess storage.Session,
	node *domain.CapturedException,
	parent domain.Optional[int64],
) (domain.LogIdentifier, error) {
	species := domain.Species{
		ID:           node.ExceptionID(),
		AssemblyName: node.AssemblyName,
		TypeName:     node.TypeName,
		StackTrace:   node.StackTrace,
	}

	g, gctx := errgroup.WithContext(ctx)

	if ts, ok := node.TargetSite.Get(); ok {
		tsID := ts.ID()
		species.TargetSiteID = domain.Some(tsID)
		g.Go(func() error {
			return sess.UpsertTargetSite(gctx, tsID, ts)
		})
	}

	g.Go(func() error {
		return sess.UpsertApplication(gctx, l.appID, l.app)
	})

	var instanceID int64
	g.Go(func() error {
		policy, err := sess.UpsertException(gctx, species)
		if err != nil {
			return err
		}

		instanceID, err = sess.InsertInstance(gctx, domain.Instance{
			ExceptionID:         species.ID,
			ApplicationID:       l.appID,
			LoggedAt:            node.LoggedAt,
			SequenceNumber:      node.SequenceNumber,
			IsHandled:           node.IsHandled,
			ApplicationIdentity: l.app.Identity,
			ParentID:            parent,
			CorrelationID:       node.CorrelationID,
			GoroutineID:         node.GoroutineID,
			Message:             node.Message,
		})
		if err != nil {
			return err
		}

		if policy.LogWebContext {
			l.writeWebContext(gctx, g, sess, node, instanceID, policy)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return domain.LogIdentifier{}, err
	}
	return domain.LogIdentifier{Species: species.ID, InstanceID: instanceID}, nil
}

// writeWebContext schedules the request rows on g. It is a no-op unless both the request and
// the hosting snapshot were captured.
func (l *Logger) writeWebContext(
	ctx context.Context,
	g *errgroup.Group,
	sess storage.Session,
	node *domain.CapturedException,
	instanceID int64,
	policy domain.Policy,
) {
	req, ok := node.Request.Get()
	if !ok {
		return
	}
	hosting, ok := node.Hosting.Get()
	if !ok {
		return
	}

	wc := domain.WebContext{
		InstanceID:        instanceID,
		WebApplicationID:  hosting.ID(),
		AuthenticatedUser: req.AuthenticatedUser,
		HTTPMethod:        req.Method,
	}

	g.Go(func() error {
		return sess.UpsertWebApplication(ctx, wc.WebApplicationID, hosting)
	})

	wc.RequestURLQueryID = writeURL(ctx, g, sess, domain.SplitURL(req.URL))
	if ref, ok := req.Referrer.Get(); ok {
		wc.ReferrerURLQueryID = domain.Some(writeURL(ctx, g, sess, domain.SplitURL(ref)))
	}

	if raw, ok := req.Headers.Get(); ok && policy.LogHeaders && len(raw) > 0 {
		hs := raw.Merged()
		id := hs.ID()
		wc.HeadersCollectionID = domain.Some(id)
		g.Go(func() error {
			return writeHeaders(ctx, sess, id, hs)
		})
	}

	g.Go(func() error {
		return sess.InsertWebContext(ctx, wc)
	})
}

// writeURL schedules the URL and URL-query upserts and returns the URL-query id.
func writeURL(ctx context.Context, g *errgroup.Group, sess storage.Session, u domain.URLParts) domain.Digest {
	urlID := u.URLID()
	queryID := u.URLQueryID()
	g.Go(func() error {
		return sess.UpsertURL(ctx, urlID, u)
	})
	g.Go(func() error {
		return sess.UpsertURLQuery(ctx, queryID, urlID, u.Query)
	})
	return queryID
}

// writeHeaders stores a header collection unless every entry is already present. hs must
// have unique names.
func writeHeaders(ctx context.Context, sess storage.Session, id domain.Digest, hs domain.Headers) error {
	n, err := sess.CountCollection(ctx, id)
	if err != nil {
		return err
	}
	if n == len(hs) {
		metrics.HeaderCollectionsSkipped.Inc()
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	seen := make(map[domain.Digest]struct{}, len(hs))
	for _, h := range hs {
		valueID := h.ValueID()
		if _, ok := seen[valueID]; !ok {
			seen[valueID] = struct{}{}
			value := h.Value
			g.Go(func() error {
				return sess.UpsertCollectionValue(gctx, valueID, value)
			})
		}
		name := h.Name
		g.Go(func() error {
			return sess.UpsertCollectionEntry(gctx, id, name, valueID)
		})
	}
	return g.Wait()
}
