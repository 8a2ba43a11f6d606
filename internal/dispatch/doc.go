// Package dispatch routes ISAR inspection events to their downstream effects.
//
// The Dispatcher holds the two exclusive bus subscriptions for inspection
// results and inspection values. Each delivered event is handled in its own
// goroutine:
//
//   - Result events are deduplicated against the record store. An unseen
//     inspection gets a record, its analyses are resolved from the tag and
//     description, and exactly one analysis workflow is triggered. The
//     workflow is told whether the constant level oiler analysis applies.
//   - Value events are forwarded to the time-series store, with no dedup and
//     no record lookup.
//
// Error handling:
//   - Duplicate result → warning, event dropped
//   - Malformed payload → error logged, event dropped
//   - Store, trigger or forward failure → error logged with inspection_id, event dropped
//   - Handler panic → recovered and logged
//
// Nothing is retried and nothing is rolled back: once a record exists it is
// the permanent dedup marker for its inspection, even if the trigger failed.
//
// Exists followed by Create is not atomic, so concurrent redelivery of one
// inspection can race. Stores that implement AtomicRecordStore close the race
// when the dispatcher is built WithStrictDedupe.
package dispatch
