package ledger

import "sort"

// Order selects the direction buckets are iterated in.
type Order int

const (
	Ascending Order = iota
	Descending
)

// Bucket is a group of records sharing a day or month key, in input order.
type Bucket struct {
	Key     string             `json:"key"`
	Records []NormalizedRecord `json:"records"`
}

// Buckets maps keys to records. Only keys present in the input exist.
type Buckets struct {
	index   map[string]int
	buckets []Bucket
}

// BucketByDay groups records by their YYYY-MM-DD key.
func BucketByDay(records []NormalizedRecord) *Buckets {
	return bucketBy(records, NormalizedRecord.DayKey)
}

// BucketByMonth groups records by their YYYY-MM key.
func BucketByMonth(records []NormalizedRecord) *Buckets {
	return bucketBy(records, NormalizedRecord.MonthKey)
}

func bucketBy(records []NormalizedRecord, key func(NormalizedRecord) string) *Buckets {
	b := &Buckets{index: make(map[string]int)}
	for _, r := range records {
		k := key(r)
		i, ok := b.index[k]
		if !ok {
			i = len(b.buckets)
			b.index[k] = i
			b.buckets = append(b.buckets, Bucket{Key: k})
		}
		b.buckets[i].Records = append(b.buckets[i].Records, r)
	}
	return b
}

// Len returns the number of keys.
func (b *Buckets) Len() int {
	return len(b.buckets)
}

// Get returns the records under key, nil when the key is absent.
func (b *Buckets) Get(key string) []NormalizedRecord {
	i, ok := b.index[key]
	if !ok {
		return nil
	}
	return b.buckets[i].Records
}

// Keys returns the keys sorted in the given order. Keys are fixed-width
// and zero-padded, so string order is chronological order.
func (b *Buckets) Keys(order Order) []string {
	keys := make([]string, 0, len(b.buckets))
	for _, bk := range b.buckets {
		keys = append(keys, bk.Key)
	}
	if order == Descending {
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	} else {
		sort.Strings(keys)
	}
	return keys
}

// Sorted returns the buckets in key order.
func (b *Buckets) Sorted(order Order) []Bucket {
	out := make([]Bucket, 0, len(b.buckets))
	for _, k := range b.Keys(order) {
		out = append(out, b.buckets[b.index[k]])
	}
	return out
}
