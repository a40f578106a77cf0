package newsfeed

import "errors"

var (
	// ErrTransientNetwork indicates a timeout or transport failure that is
	// retried internally and only surfaced once retries are exhausted.
	ErrTransientNetwork = errors.New("newsfeed: transient network failure")
	// ErrEmptyResult indicates a syntactically valid upstream response with
	// no items; it is treated as a failure for fallback purposes.
	ErrEmptyResult = errors.New("newsfeed: empty result")
	// ErrStorageRead indicates a persistent-store read failure. It is always
	// recovered internally and never surfaced to fetch callers.
	ErrStorageRead = errors.New("newsfeed: storage read failure")
	// ErrStorageWrite indicates a persistent-store write failure. It is
	// always recovered internally and never surfaced to fetch callers.
	ErrStorageWrite = errors.New("newsfeed: storage write failure")
	// ErrSourceUnknown indicates a source id absent from the static catalog.
	ErrSourceUnknown = errors.New("newsfeed: unknown source")
	// ErrSubscriptionClosed indicates a refetch bus subscription that is no
	// longer active.
	ErrSubscriptionClosed = errors.New("newsfeed: subscription closed")
)
