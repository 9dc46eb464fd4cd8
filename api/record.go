package api

// Schema declares which wire keys a resource kind decodes, and as which kind.
// Keys the server sends that are not declared are ignored.
type Schema struct {
	// IDKey names the field holding the entity identity.
	IDKey string

	Identifiers []string
	Strings     []string
	Dates       []string
	Booleans    []string
	Arrays      []string
}

// Each calls fn for every declared key together with its kind.
func (s Schema) Each(fn func(key string, kind Kind)) {
	for _, group := range []struct {
		kind Kind
		keys []string
	}{
		{KindIdentifier, s.Identifiers},
		{KindString, s.Strings},
		{KindDate, s.Dates},
		{KindBoolean, s.Booleans},
		{KindArray, s.Arrays},
	} {
		for _, k := range group.keys {
			fn(k, group.kind)
		}
	}
}

// KindOf returns the declared kind of key, or KindInvalid when the schema
// does not declare it.
func (s Schema) KindOf(key string) Kind {
	kind := KindInvalid
	s.Each(func(k string, kk Kind) {
		if k == key {
			kind = kk
		}
	})
	return kind
}

// Entity is implemented by every resource type.
type Entity interface {
	ID() string
	IDKey() string
	Fields() Fields
	Changed() bool
	ClearChanged()
}

// Record is the common base embedded by every entity. All mutation goes
// through Set, which marks the record dirty; the backing map is never handed
// out directly.
type Record struct {
	fields  Fields
	idKey   string
	changed bool
}

// NewRecord returns a record over a private copy of fields.
func NewRecord(idKey string, fields Fields) Record {
	if fields == nil {
		return Record{fields: Fields{}, idKey: idKey}
	}
	return Record{fields: fields.Clone(), idKey: idKey}
}

// IDKey returns the name of the identity field.
func (r *Record) IDKey() string { return r.idKey }

// ID returns the identity, or "" before the entity exists server-side.
func (r *Record) ID() string { return r.fields.Text(r.idKey) }

// SetID writes the identity field.
func (r *Record) SetID(id string) { r.Set(r.idKey, Identifier(id)) }

// Get returns the value stored under key.
func (r *Record) Get(key string) (Value, bool) {
	v, ok := r.fields[key]
	return v, ok
}

// Set stores v under key and marks the record changed.
func (r *Record) Set(key string, v Value) {
	if r.fields == nil {
		r.fields = Fields{}
	}
	r.fields[key] = v
	r.changed = true
}

// Fields returns a snapshot of the record's fields.
func (r *Record) Fields() Fields { return r.fields.Clone() }

func (r *Record) Changed() bool { return r.changed }

func (r *Record) ClearChanged() { r.changed = false }

func (r *Record) text(key string) string { return r.fields.Text(key) }

func (r *Record) flag(key string) bool {
	v, ok := r.fields[key]
	return ok && v.Kind() == KindBoolean && v.Flag()
}

func (r *Record) items(key string) []string {
	v, ok := r.fields[key]
	if !ok || v.Kind() != KindArray {
		return nil
	}
	return v.Items()
}

// Reinterpret builds a new typed view over a snapshot of src's fields. The
// result never aliases src: later changes to either side are not shared.
func Reinterpret[T Entity](src Entity, wrap func(Fields) T) T {
	return wrap(src.Fields())
}
