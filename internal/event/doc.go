// Package event defines the core data types flowing through the pipeline.
//
// Key types:
//   - Component: Closed enum identifying the measured subsystem
//   - LatencyEvent: A single completed timing measurement
//   - Filter: Component/time-range predicate for queries and exports
//   - AggregateSnapshot: Windowed statistics derived from stored events
package event
