package domain

// Batch is the result of transforming one snapshot.
// Readings are strictly ascending by Timestamp. Latest, when set, is newer than
// every element of Readings and is the only reading carrying trend data.
type Batch struct {
	Status   PumpStatus
	Readings []Reading
	Latest   *TrendReading
}

// Entries flattens the batch into upload order: status first, then readings oldest first.
func (b *Batch) Entries() []Entry {
	out := make([]Entry, 0, len(b.Readings)+2)
	out = append(out, b.Status)
	for _, r := range b.Readings {
		out = append(out, r)
	}
	if b.Latest != nil {
		out = append(out, *b.Latest)
	}
	return out
}

// ReadingCount returns the number of sgv entries in the batch.
func (b *Batch) ReadingCount() int {
	n := len(b.Readings)
	if b.Latest != nil {
		n++
	}
	return n
}
