package condition

import (
	"sort"
	"time"

	"github.com/nitilens/compliance/internal/domain"
)

// Index holds a corpus of transactions grouped by field value with each
// group timestamp-sorted, so windowed counts run as a two-pointer sweep per
// group instead of a quadratic scan.
type Index struct {
	txns   []domain.Transaction
	groups map[string]map[string][]*domain.Transaction // field key -> value -> sorted txns
}

func NewIndex(txns []domain.Transaction) *Index {
	return &Index{
		txns:   txns,
		groups: make(map[string]map[string][]*domain.Transaction),
	}
}

// Cluster is a maximal run of transactions sharing one group value whose
// pairwise window constraint was met. A cluster yields a single aggregate
// violation; no individual transaction owns the finding.
type Cluster struct {
	Value        string
	Start        time.Time
	End          time.Time
	Transactions []*domain.Transaction
}

// Clusters evaluates a WindowCount term over the corpus. filter restricts
// group membership (the expression's per-row terms); pass nil for none.
// Overlapping qualifying windows are merged into one cluster.
func (ix *Index) Clusters(w *WindowCount, filter func(*domain.Transaction) bool) []Cluster {
	var clusters []Cluster
	for _, value := range ix.groupValues(w.Field) {
		group := ix.group(w.Field, value)
		if filter != nil {
			kept := group[:0:0]
			for _, t := range group {
				if filter(t) {
					kept = append(kept, t)
				}
			}
			group = kept
		}
		if len(group) == 0 {
			continue
		}

		// Two-pointer sweep: mark every member of a qualifying window.
		marked := make([]bool, len(group))
		left := 0
		for right := range group {
			for group[right].Timestamp.Sub(group[left].Timestamp) > w.Window {
				left++
			}
			count := float64(right - left + 1)
			if w.Op.compare(count, w.Threshold) {
				for i := left; i <= right; i++ {
					marked[i] = true
				}
			}
		}

		// Contiguous marked runs become clusters.
		for i := 0; i < len(group); {
			if !marked[i] {
				i++
				continue
			}
			j := i
			for j < len(group) && marked[j] {
				j++
			}
			clusters = append(clusters, Cluster{
				Value:        value,
				Start:        group[i].Timestamp,
				End:          group[j-1].Timestamp,
				Transactions: group[i:j],
			})
			i = j
		}
	}
	return clusters
}

func (ix *Index) group(f Field, value string) []*domain.Transaction {
	return ix.byField(f)[value]
}

// groupValues returns the distinct values of a field in deterministic order.
func (ix *Index) groupValues(f Field) []string {
	m := ix.byField(f)
	values := make([]string, 0, len(m))
	for v := range m {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

func (ix *Index) byField(f Field) map[string][]*domain.Transaction {
	if m, ok := ix.groups[f.Key]; ok {
		return m
	}
	m := make(map[string][]*domain.Transaction)
	for i := range ix.txns {
		t := &ix.txns[i]
		m[f.Text(t)] = append(m[f.Text(t)], t)
	}
	for _, group := range m {
		sort.Slice(group, func(a, b int) bool {
			return group[a].Timestamp.Before(group[b].Timestamp)
		})
	}
	ix.groups[f.Key] = m
	return m
}
