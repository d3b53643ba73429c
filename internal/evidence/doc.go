// Package evidence provides the business boundary for compliance evidence
// rollups. It defines the category document format, the pure merge and
// summary operations over it, the Store interface (persistence with
// optimistic versioning), the Aggregator (transactional merge with bounded
// retry) and the Runner that drives evidence producers.
package evidence
