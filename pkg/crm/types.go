package crm

import (
	"errors"
	"strings"
)

// OperationKind selects the server endpoint a call is sent to. Each kind is
// served from its own URL obtained at login.
type OperationKind string

// Operation kinds.
const (
	KindREST     OperationKind = "rest"
	KindPartner  OperationKind = "partner"
	KindMetadata OperationKind = "metadata"
	KindBulk     OperationKind = "bulk"
)

// OperationKinds lists every kind in a stable order.
func OperationKinds() []OperationKind {
	return []OperationKind{KindREST, KindPartner, KindMetadata, KindBulk}
}

func (k OperationKind) String() string {
	return string(k)
}

// Tenant names one configured organization. Sandbox tenants live in a
// separate registry from production tenants, so the same Key may appear in
// both.
type Tenant struct {
	Key     string `json:"key"     yaml:"key"`
	Sandbox bool   `json:"sandbox" yaml:"sandbox"`
}

// String implements fmt.Stringer.
func (t Tenant) String() string {
	if t.Sandbox {
		return t.Key + " (sandbox)"
	}

	return t.Key
}

// SaveResult is the outcome of a create or update call.
type SaveResult struct {
	ID      ID              `json:"id"               yaml:"id"`
	Success bool            `json:"success"          yaml:"success"`
	Errors  []APIErrorEntry `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// ObjectDescribe is the subset of an object's metadata this module consumes.
type ObjectDescribe struct {
	Name       string          `json:"name"       yaml:"name"`
	Label      string          `json:"label"      yaml:"label"`
	KeyPrefix  string          `json:"keyPrefix"  yaml:"key_prefix"`
	Queryable  bool            `json:"queryable"  yaml:"queryable"`
	Createable bool            `json:"createable" yaml:"createable"`
	Updateable bool            `json:"updateable" yaml:"updateable"`
	Deletable  bool            `json:"deletable"  yaml:"deletable"`
	Fields     []FieldDescribe `json:"fields"     yaml:"fields"`
}

// Field returns the field named name.
func (d *ObjectDescribe) Field(name string) (*FieldDescribe, bool) {
	for i := range d.Fields {
		if strings.EqualFold(d.Fields[i].Name, name) {
			return &d.Fields[i], true
		}
	}

	return nil, false
}

// FieldDescribe describes one field of an object.
type FieldDescribe struct {
	Name              string          `json:"name"                     yaml:"name"`
	Label             string          `json:"label"                    yaml:"label"`
	Type              string          `json:"type"                     yaml:"type"`
	Nillable          bool            `json:"nillable"                 yaml:"nillable"`
	DependentPicklist bool            `json:"dependentPicklist"        yaml:"dependent_picklist"`
	ControllerName    string          `json:"controllerName,omitempty" yaml:"controller_name,omitempty"`
	PicklistValues    []PicklistEntry `json:"picklistValues,omitempty" yaml:"picklist_values,omitempty"`
}

// PicklistEntry is one selectable value of a picklist field.
type PicklistEntry struct {
	Value        string `json:"value"              yaml:"value"`
	Label        string `json:"label"              yaml:"label"`
	Active       bool   `json:"active"             yaml:"active"`
	DefaultValue bool   `json:"defaultValue"       yaml:"default_value"`
	ValidFor     string `json:"validFor,omitempty" yaml:"valid_for,omitempty"`
}

// DependentValues maps each controlling value to the dependent values valid
// for it.
type DependentValues struct {
	Field      string              `json:"field"       yaml:"field"`
	Controller string              `json:"controller"  yaml:"controller"`
	Values     map[string][]string `json:"values"      yaml:"values"`
}

// ErrNotDependentPicklist is returned when a field has no controlling field.
var ErrNotDependentPicklist = errors.New("field is not a dependent picklist")
