package cluster

import (
	"errors"
	"fmt"
	"slices"

	"github.com/DreamCats/doubles/internal/record"
)

// ErrUnknownRecordReference is returned when an edge names an id that is not
// part of the record set.
var ErrUnknownRecordReference = errors.New("unknown record reference")

// UnknownRecordError names the id an edge referred to.
type UnknownRecordError struct {
	ID   record.ID
	Edge Edge
}

func (e *UnknownRecordError) Error() string {
	return fmt.Sprintf("edge %s references unknown record %q", e.Edge, e.ID)
}

func (e *UnknownRecordError) Is(target error) bool { return target == ErrUnknownRecordReference }

// Edge is an undirected duplicate decision between two records.
// A sorts before B under record.Compare.
type Edge struct {
	A     record.ID `json:"a"`
	B     record.ID `json:"b"`
	Score float64   `json:"score"`
}

// NewEdge orders the endpoints so that A < B.
func NewEdge(a, b record.ID, score float64) Edge {
	if record.Less(b, a) {
		a, b = b, a
	}
	return Edge{A: a, B: b, Score: score}
}

func (e Edge) String() string {
	return fmt.Sprintf("(%s,%s)=%.4f", e.A, e.B, e.Score)
}

// Peer returns the endpoint opposite id.
func (e Edge) Peer(id record.ID) record.ID {
	if e.A == id {
		return e.B
	}
	return e.A
}

// CompareEdges orders edges by (A, B).
func CompareEdges(x, y Edge) int {
	if c := record.Compare(x.A, y.A); c != 0 {
		return c
	}
	return record.Compare(x.B, y.B)
}

// SortEdges normalises endpoint order and sorts edges by (A, B) in place.
func SortEdges(edges []Edge) {
	for i, e := range edges {
		edges[i] = NewEdge(e.A, e.B, e.Score)
	}
	slices.SortStableFunc(edges, CompareEdges)
}

// Link explains why a member joined its cluster: the strongest edge that
// touches it inside the cluster.
type Link struct {
	Member      record.ID `json:"member"`
	MatchedWith record.ID `json:"matched_with"`
	Score       float64   `json:"score"`
}

// Cluster is one group of the partition.
type Cluster struct {
	// ID is the smallest member id.
	ID      record.ID   `json:"cluster_id"`
	Members []record.ID `json:"member_ids"`
	// Edges are the duplicate edges between members, sorted by (A, B).
	Edges []Edge `json:"edges,omitempty"`
	// Links has one entry per member other than ID, in member order.
	Links []Link `json:"links,omitempty"`
}

// Size returns the number of members.
func (c Cluster) Size() int { return len(c.Members) }

// IsSingleton reports whether no duplicate was found for the only member.
func (c Cluster) IsSingleton() bool { return len(c.Members) == 1 }

// Build partitions ids into clusters connected by edges. The ids are
// expected to be unique; edges may arrive in any order.
func Build(ids []record.ID, edges []Edge) ([]Cluster, error) {
	index := make(map[record.ID]int, len(ids))
	for i, id := range ids {
		if first, ok := index[id]; ok {
			return nil, &record.DuplicateIDError{ID: id, First: first, Second: i}
		}
		index[id] = i
	}

	sorted := slices.Clone(edges)
	SortEdges(sorted)

	sets := NewDisjointSet(len(ids), func(i, j int) bool {
		return record.Less(ids[i], ids[j])
	})
	for _, e := range sorted {
		a, ok := index[e.A]
		if !ok {
			return nil, &UnknownRecordError{ID: e.A, Edge: e}
		}
		b, ok := index[e.B]
		if !ok {
			return nil, &UnknownRecordError{ID: e.B, Edge: e}
		}
		sets.Union(a, b)
	}

	groups := make(map[int][]record.ID)
	for i, id := range ids {
		root := sets.Find(i)
		groups[root] = append(groups[root], id)
	}

	edgesByRoot := make(map[int][]Edge)
	for _, e := range sorted {
		if e.A == e.B {
			continue
		}
		root := sets.Find(index[e.A])
		edgesByRoot[root] = append(edgesByRoot[root], e)
	}

	clusters := make([]Cluster, 0, len(groups))
	for root, members := range groups {
		slices.SortFunc(members, record.Compare)
		c := Cluster{
			ID:      members[0],
			Members: members,
			Edges:   edgesByRoot[root],
		}
		c.Links = links(c)
		clusters = append(clusters, c)
	}
	slices.SortFunc(clusters, func(x, y Cluster) int {
		return record.Compare(x.ID, y.ID)
	})
	return clusters, nil
}

func links(c Cluster) []Link {
	if len(c.Members) < 2 {
		return nil
	}
	best := make(map[record.ID]Link, len(c.Members))
	consider := func(member, peer record.ID, score float64) {
		cur, ok := best[member]
		if !ok || score > cur.Score || (score == cur.Score && record.Less(peer, cur.MatchedWith)) {
			best[member] = Link{Member: member, MatchedWith: peer, Score: score}
		}
	}
	for _, e := range c.Edges {
		consider(e.A, e.B, e.Score)
		consider(e.B, e.A, e.Score)
	}
	out := make([]Link, 0, len(c.Members)-1)
	for _, m := range c.Members[1:] {
		if l, ok := best[m]; ok {
			out = append(out, l)
		}
	}
	return out
}
