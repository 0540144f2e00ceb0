// Package services holds the glue shared by all stage handlers and provider
// clients: context keys for item/stage/lane/request identity, and the error
// marker scheme (Wrap, FailureStatus) that decides whether a failed item
// lands in failed or review.
//
// New stage code should classify its failures through Wrap so retry and
// review semantics stay uniform across the pipeline.
package services
