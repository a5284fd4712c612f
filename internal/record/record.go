// Package record defines the dynamic row type produced by scripts and
// consumed by the CSV sink.
package record

// Record is an ordered sequence of string fields, grown one at a time by
// script code via PushField. It is a fully owned value: once handed to the
// sink it is never mutated again by its producer.
type Record struct {
	fields []string
}

// New creates an empty Record.
func New() *Record {
	return &Record{}
}

// PushField appends a field to the end of the record.
func (r *Record) PushField(v string) {
	r.fields = append(r.fields, v)
}

// Fields returns the record's fields in emission order. The returned slice
// must not be mutated by the caller.
func (r *Record) Fields() []string {
	return r.fields
}

// Len reports the number of fields currently pushed.
func (r *Record) Len() int {
	return len(r.fields)
}
