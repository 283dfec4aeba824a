// Package pipeline wires the measurement path end to end.
//
// Architecture:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│   Sampler   │────▶│   Buffer    │────▶│    Batch    │────▶│   DuckDB    │
//	│ (Begin/End) │     │ (drop-old)  │     │   Writer    │     │    Store    │
//	└─────────────┘     └─────────────┘     └─────────────┘     └─────────────┘
//	                                                                   │
//	                                              ┌─────────────┐      │
//	                                              │  Retention  │◀─────┤
//	                                              └─────────────┘      │
//	                                              ┌─────────────┐      │
//	                                              │  Aggregate  │◀─────┘
//	                                              │   / Query   │
//	                                              └─────────────┘
//
// The pipeline provides:
//   - Non-blocking event capture on the measured path
//   - Bounded buffering with drop-oldest overflow and full accounting
//   - Batched atomic commits with bounded retry
//   - Asynchronous retention that never blocks ingestion
//   - Read-only queries over committed state only
//
// Every failure past construction is contained: it is counted, logged and
// the pipeline keeps flowing. Only opening the store can abort startup.
package pipeline
