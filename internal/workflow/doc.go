// Package workflow walks queue items up the stage ladder.
//
// The Manager polls the queue, reclaims heartbeat-stale work, and feeds
// items into registered stage handlers (narrator, illustrator, composer,
// renderer, publisher) while capturing progress and failure metadata. It also
// aggregates queue stats, calls stage health checks, and emits queue-level
// notifications when processing starts or completes.
//
// The workflow runs two independent lanes: foreground (narration and
// illustration, bound on external providers) and background (composing,
// rendering, publishing, bound on local CPU). Each lane polls for items
// matching its statuses and processes them independently, so job B can
// synthesize narration while job A renders.
//
// New lifecycle stages mean extending StageSet, adding the queue statuses,
// and teaching the manager the transition; that coordination lives here and
// nowhere else.
package workflow
