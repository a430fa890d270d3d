package crm

import (
	"encoding/json"
	"sort"
	"sync"
)

// Record is one instance of a remote object. It is safe for concurrent use.
type Record struct {
	mutex    sync.RWMutex
	id       *ID
	typeName string
	fields   map[string]*string
	children map[string]*QueryResult
	parents  map[string]*Record
}

// NewRecord returns an empty record of the given type. id may be nil for
// records that do not exist remotely yet.
func NewRecord(typeName string, id *ID) *Record {
	record := &Record{
		typeName: typeName,
		fields:   make(map[string]*string),
		children: make(map[string]*QueryResult),
		parents:  make(map[string]*Record),
	}

	if id != nil {
		idCopy := *id
		record.id = &idCopy
	}

	return record
}

// Type returns the remote object type name.
func (r *Record) Type() string {
	return r.typeName
}

// ID returns the record identifier, if any.
func (r *Record) ID() (ID, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.id == nil {
		return ID{}, false
	}

	return *r.id, true
}

// SetID assigns the identifier, typically after a create call.
func (r *Record) SetID(id ID) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.id = &id
}

// SetField stores value under name. A nil value marks the field as explicitly null.
func (r *Record) SetField(name string, value *string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.fields[name] = copyValue(value)
}

// SetFieldValue is SetField for a non-null value.
func (r *Record) SetFieldValue(name, value string) {
	r.SetField(name, &value)
}

// Field returns the value stored under name. ok is false when the field was
// not retrieved; a nil value with ok true means the field is null.
func (r *Record) Field(name string) (*string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	value, ok := r.fields[name]

	return copyValue(value), ok
}

// FieldString returns the value under name, or "" when absent or null.
func (r *Record) FieldString(name string) string {
	value, ok := r.Field(name)
	if !ok || value == nil {
		return ""
	}

	return *value
}

// IsFieldSet reports whether name is present, null or not.
func (r *Record) IsFieldSet(name string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, ok := r.fields[name]

	return ok
}

// Fields returns a snapshot copy of all fields.
func (r *Record) Fields() map[string]*string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	snapshot := make(map[string]*string, len(r.fields))
	for name, value := range r.fields {
		snapshot[name] = copyValue(value)
	}

	return snapshot
}

// FieldNames returns the sorted names of all present fields.
func (r *Record) FieldNames() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.fields))
	for name := range r.fields {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// SetFields applies every entry of fields. Each entry is applied on its own;
// concurrent readers may observe a partially applied batch.
func (r *Record) SetFields(fields map[string]*string) {
	for name, value := range fields {
		r.SetField(name, value)
	}
}

// RemoveField deletes name and returns its previous value. ok is false when
// the field was not present.
func (r *Record) RemoveField(name string) (*string, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	value, ok := r.fields[name]
	if ok {
		delete(r.fields, name)
	}

	return value, ok
}

// SetChildren stores a parent-to-children relationship result.
func (r *Record) SetChildren(relationship string, result *QueryResult) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.children[relationship] = result
}

// Children returns the parent-to-children relationship result under relationship.
func (r *Record) Children(relationship string) (*QueryResult, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result, ok := r.children[relationship]

	return result, ok
}

// AllChildren returns a copy of the parent-to-children relationship map.
func (r *Record) AllChildren() map[string]*QueryResult {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	snapshot := make(map[string]*QueryResult, len(r.children))
	for name, result := range r.children {
		snapshot[name] = result
	}

	return snapshot
}

// SetParent stores a child-to-parent relationship record.
func (r *Record) SetParent(relationship string, parent *Record) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.parents[relationship] = parent
}

// Parent returns the child-to-parent relationship record under relationship.
func (r *Record) Parent(relationship string) (*Record, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	parent, ok := r.parents[relationship]

	return parent, ok
}

// AllParents returns a copy of the child-to-parent relationship map.
func (r *Record) AllParents() map[string]*Record {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	snapshot := make(map[string]*Record, len(r.parents))
	for name, parent := range r.parents {
		snapshot[name] = parent
	}

	return snapshot
}

// MarshalJSON renders the record in the same shape the remote API uses.
func (r *Record) MarshalJSON() ([]byte, error) {
	r.mutex.RLock()

	out := make(map[string]interface{}, len(r.fields)+len(r.children)+len(r.parents)+2)
	out[attributesKey] = map[string]string{attributeType: r.typeName}

	if r.id != nil {
		out[idKey] = r.id.Full()
	}

	for name, value := range r.fields {
		if value == nil {
			out[name] = nil
		} else {
			out[name] = *value
		}
	}

	for name, result := range r.children {
		out[name] = result
	}

	for name, parent := range r.parents {
		out[name] = parent
	}

	r.mutex.RUnlock()

	return json.Marshal(out)
}

func copyValue(value *string) *string {
	if value == nil {
		return nil
	}

	v := *value

	return &v
}
