// Package accumulator durably records visits and maintains the cached
// popularity ranking, decoupled from the redirect path by a bounded queue.
package accumulator

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/amirphl/Kusanagi/cache"
	"github.com/amirphl/Kusanagi/config"
	"github.com/amirphl/Kusanagi/models"
	"github.com/amirphl/Kusanagi/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	visitsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_visits_recorded_total",
		Help: "Visit records durably written",
	})
	visitsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stats_visits_dropped_total",
		Help: "Visit records dropped, partitioned by reason",
	}, []string{"reason"})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stats_queue_depth",
		Help: "Visits waiting in the accumulator queue",
	})
)

// Visit is one queued visit event
type Visit struct {
	Code      string
	VisitedAt time.Time
	UserAgent *string
	IPHash    *string
}

// Accumulator consumes queued visits: it appends a VisitRecord, bumps the
// link's atomic visit counter and increments the cached popularity score.
// Persistence failures are retried a bounded number of times and then
// dropped; losing a count is acceptable, blocking a redirect is not.
type Accumulator struct {
	linkRepo  repository.LinkRepository
	visitRepo repository.VisitRecordRepository
	linkCache cache.LinkCache
	cfg       config.StatsConfig

	queue chan Visit
	wg    sync.WaitGroup
}

func New(
	linkRepo repository.LinkRepository,
	visitRepo repository.VisitRecordRepository,
	linkCache cache.LinkCache,
	cfg config.StatsConfig,
) *Accumulator {
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Accumulator{
		linkRepo:  linkRepo,
		visitRepo: visitRepo,
		linkCache: linkCache,
		cfg:       cfg,
		queue:     make(chan Visit, cfg.QueueSize),
	}
}

// Record enqueues a visit without blocking. When the queue is full the visit
// is dropped and counted; the caller's redirect is never delayed.
func (a *Accumulator) Record(code string, visitedAt time.Time, userAgent, ipHash *string) bool {
	select {
	case a.queue <- Visit{Code: code, VisitedAt: visitedAt, UserAgent: userAgent, IPHash: ipHash}:
		queueDepth.Set(float64(len(a.queue)))
		return true
	default:
		visitsDropped.WithLabelValues("queue_full").Inc()
		return false
	}
}

// Start launches the worker pool and the periodic popularity rebuild, and
// returns a stop function that drains the queue before returning.
func (a *Accumulator) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	for i := 0; i < a.cfg.Workers; i++ {
		a.wg.Add(1)
		go a.worker(ctx)
	}

	if a.cfg.RebuildInterval > 0 {
		a.wg.Add(1)
		go a.rebuildLoop(ctx)
	}

	return func() {
		cancel()
		a.wg.Wait()
	}
}

func (a *Accumulator) worker(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case v := <-a.queue:
			a.process(v)
			queueDepth.Set(float64(len(a.queue)))
		case <-ctx.Done():
			a.drain()
			return
		}
	}
}

// drain empties the queue after shutdown so already-accepted visits are not lost
func (a *Accumulator) drain() {
	for {
		select {
		case v := <-a.queue:
			a.process(v)
		default:
			return
		}
	}
}

func (a *Accumulator) process(v Visit) {
	// workers own their deadlines; the enqueuing request may be long gone
	retries := a.cfg.MaxRetries
	if retries < 1 {
		retries = 1
	}
	var err error
	for i := 0; i < retries; i++ {
		if i > 0 && a.cfg.RetryBackoff > 0 {
			time.Sleep(a.cfg.RetryBackoff * time.Duration(i))
		}
		err = a.persist(v)
		if err == nil {
			visitsRecorded.Inc()
			a.bumpScore(v)
			return
		}
	}
	visitsDropped.WithLabelValues("persist_failed").Inc()
	log.Println("Dropping visit record after retries", v.Code, err)
}

func (a *Accumulator) persist(v Visit) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	link, err := a.linkRepo.ByCode(ctx, v.Code)
	if err != nil {
		return err
	}
	if link == nil {
		// link vanished between redirect and recording; nothing to account
		return nil
	}
	rec := &models.VisitRecord{
		LinkID:    link.ID,
		Code:      v.Code,
		VisitedAt: v.VisitedAt,
		UserAgent: v.UserAgent,
		IPHash:    v.IPHash,
	}
	if err := a.visitRepo.Save(ctx, rec); err != nil {
		return err
	}
	return a.linkRepo.IncrementVisit(ctx, v.Code, v.VisitedAt)
}

func (a *Accumulator) bumpScore(v Visit) {
	if a.linkCache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.linkCache.IncrementScore(ctx, v.Code, v.VisitedAt); err != nil {
		// ranking drift is corrected by the periodic rebuild
		log.Println("Failed to increment popularity score", v.Code, err)
	}
}

func (a *Accumulator) rebuildLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.RebuildInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.SweepExpired(ctx); err != nil {
				log.Println("Expiry sweep failed", err)
			}
			if err := a.RebuildPopularity(ctx); err != nil {
				log.Println("Popularity rebuild failed", err)
			}
		}
	}
}

// SweepExpired disables links whose expiry has passed so they drop out of
// listings and the next popularity rebuild.
func (a *Accumulator) SweepExpired(ctx context.Context) error {
	swept, err := a.linkRepo.DeactivateExpired(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if swept > 0 {
		log.Println("Disabled expired links", swept)
	}
	return nil
}

// RebuildPopularity recomputes the cached ranking from durable visit counts,
// correcting any drift from transient failures or evictions.
func (a *Accumulator) RebuildPopularity(ctx context.Context) error {
	if a.linkCache == nil {
		return nil
	}
	n := a.cfg.RebuildSize
	if n < 1 {
		n = 100
	}
	links, err := a.linkRepo.TopByVisits(ctx, n)
	if err != nil {
		return err
	}
	entries := make([]cache.PopularityEntry, 0, len(links))
	for _, l := range links {
		if l.VisitCount == 0 {
			continue
		}
		e := cache.PopularityEntry{Code: l.Code, Count: l.VisitCount}
		if l.LastVisitedAt != nil {
			e.LastVisit = *l.LastVisitedAt
		}
		entries = append(entries, e)
	}
	return a.linkCache.ReplacePopular(ctx, entries)
}
