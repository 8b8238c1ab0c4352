// Package cluster turns duplicate edges into a partition of all records.
//
// # Policy
//
// Clusters are the connected components of the duplicate graph, computed
// with a union-find (disjoint-set) structure. Every record starts in its own
// set and each edge merges the two sets it touches. Records without any
// edge end up as singleton clusters, so the output always partitions the
// full input: every id appears in exactly one cluster.
//
// # Chaining
//
// Similarity is symmetric but not transitive. If A~B and B~C score above
// the threshold, A, B and C land in one cluster even when A and C on their
// own score far below it. This is the accepted cost of connected-components
// grouping: it is cheap, flat and easy to reason about, but a chain of near
// duplicates can pull together records that are not pairwise similar.
// Cluster.Links exposes the edge that attached each member so a reader can
// see where a chain ran through.
//
// # Determinism
//
// Edges are processed sorted by (lower id, higher id) under record.Compare,
// and a union always keeps the root with the smaller id. The ClusterID of a
// cluster is its smallest member id. Clusters are returned sorted by
// ClusterID and members are sorted ascending, so identical inputs produce
// identical output regardless of the order edges were discovered in.
package cluster
