// Package types defines the core data types used throughout the storage system.
//
// Key types:
//   - Sample: One resource-utilization snapshot of a target
//   - RawRow: The flattened, durable projection of a Sample
//   - AggregatedBucket: 1-minute min/avg/max statistics of a target
//   - AlertThreshold / AlertRecord: alert rules and their firings
//   - Tier: Storage tier (Raw, 1m) and the query tier policy
package types
