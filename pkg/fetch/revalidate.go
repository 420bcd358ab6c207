package fetch

import (
	"context"
	"net/http"
	"time"

	"github.com/fetchcache/fetchcache/pkg/events"
	"github.com/fetchcache/fetchcache/pkg/store"
	"golang.org/x/sync/singleflight"
)

// Outcome reports how a background revalidation settled.
type Outcome struct {
	// Modified is true when the origin returned a changed response.
	Modified bool
}

// Revalidate refreshes a stale entry in the background and returns a channel
// that settles when the refresh completes. Concurrent revalidations of the
// same key share a single origin fetch and store write.
//
// The "response-stale-revalidating" event is dispatched strictly before the
// network call starts; "response-revalidated" strictly after the merge has
// been written back. A failed fetch leaves the stored entry untouched and
// schedules no retry; the next stale hit triggers a new revalidation.
func (c *Client) Revalidate(req *http.Request, entry *store.Entry) <-chan singleflight.Result {
	key := entry.Key
	// detach from the caller's context so returning the stale response
	// does not cancel the refresh
	revalReq := entry.Policy.RevalidationRequest(req)
	revalReq = revalReq.WithContext(context.WithoutCancel(req.Context()))

	ch := c.revalidations.DoChan(key, func() (any, error) {
		return c.runRevalidation(revalReq, key, entry)
	})

	settled := make(chan singleflight.Result, 1)
	c.pending.Add(1)
	go func() {
		defer c.pending.Done()
		settled <- <-ch
	}()
	return settled
}

func (c *Client) runRevalidation(req *http.Request, key string, entry *store.Entry) (any, error) {
	c.notifier.Dispatch(events.ResponseStaleRevalidating, events.RevalidationPayload{URL: key})

	reqTime := time.Now()
	res, err := c.transport.Do(req)
	if err != nil {
		// swallowed: the stale entry already served stands unchanged
		revalidationsTotal.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Str("url", key).Msg("Background revalidation failed")
		return nil, err
	}
	resTime := time.Now()

	merged, modified := entry.Policy.MergeRevalidation(req, res, reqTime, resTime)

	var next *store.Entry
	if modified {
		revalidationsTotal.WithLabelValues("modified").Inc()
		if !merged.Storable() {
			// origin stopped allowing storage; drop the stale entry
			if err := c.store.Delete(req.Context(), key); err != nil {
				c.logger.Warn().Err(err).Str("url", key).Msg("Could not drop replaced entry")
			}
			c.notifier.Dispatch(events.ResponseRevalidated, events.RevalidationPayload{URL: key, Modified: true})
			return Outcome{Modified: true}, nil
		}
		body, err := captureBody(res)
		if err != nil {
			revalidationsTotal.WithLabelValues("error").Inc()
			c.logger.Warn().Err(err).Str("url", key).Msg("Could not capture revalidated body")
			return nil, err
		}
		next = store.NewEntry(key, body, res.Header, merged)
	} else {
		revalidationsTotal.WithLabelValues("unchanged").Inc()
		if res.Body != nil {
			res.Body.Close()
		}
		// stored body retained byte-for-byte; only policy and headers move
		next = store.NewEntry(key, entry.Body, merged.ResHeaders, merged)
	}

	if err := c.store.Set(req.Context(), key, next, merged.TimeToLive()); err != nil {
		storeWriteFailures.Inc()
		c.logger.Warn().Err(err).Str("url", key).Msg("Store write failed after revalidation")
	}

	c.notifier.Dispatch(events.ResponseRevalidated, events.RevalidationPayload{URL: key, Modified: modified})
	c.logger.Debug().
		Str("url", key).
		Bool("modified", modified).
		Dur("ttl", merged.TimeToLive()).
		Msg("Revalidation complete")

	return Outcome{Modified: modified}, nil
}
