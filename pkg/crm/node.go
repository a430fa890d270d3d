package crm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// NodeKind is the shape of a payload node.
type NodeKind int

// Payload node shapes.
const (
	NodeNull NodeKind = iota
	NodeScalar
	NodeObject
	NodeArray
)

// String implements fmt.Stringer.
func (k NodeKind) String() string {
	switch k {
	case NodeNull:
		return "null"
	case NodeScalar:
		return "scalar"
	case NodeObject:
		return "object"
	case NodeArray:
		return "array"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// ScalarType is the JSON type a scalar node was decoded from.
type ScalarType int

// Scalar types.
const (
	ScalarString ScalarType = iota
	ScalarNumber
	ScalarBool
)

// String implements fmt.Stringer.
func (t ScalarType) String() string {
	switch t {
	case ScalarString:
		return "string"
	case ScalarNumber:
		return "number"
	case ScalarBool:
		return "boolean"
	default:
		return "unknown(" + strconv.Itoa(int(t)) + ")"
	}
}

// Node is an untyped payload tree: null, a scalar rendered as a string, an
// object, or an array. Scalars remember their JSON type. The zero Node is
// null.
type Node struct {
	kind       NodeKind
	scalar     string
	scalarType ScalarType
	object     map[string]Node
	array      []Node
}

// NullNode returns a null node.
func NullNode() Node {
	return Node{kind: NodeNull}
}

// ScalarNode returns a string scalar node holding value.
func ScalarNode(value string) Node {
	return Node{kind: NodeScalar, scalar: value, scalarType: ScalarString}
}

// NumberNode returns a number scalar node with the given literal text.
func NumberNode(text string) Node {
	return Node{kind: NodeScalar, scalar: text, scalarType: ScalarNumber}
}

// BoolNode returns a boolean scalar node.
func BoolNode(value bool) Node {
	return Node{kind: NodeScalar, scalar: strconv.FormatBool(value), scalarType: ScalarBool}
}

// ObjectNode returns an object node over members. The map is not copied.
func ObjectNode(members map[string]Node) Node {
	if members == nil {
		members = map[string]Node{}
	}

	return Node{kind: NodeObject, object: members}
}

// ArrayNode returns an array node over items. The slice is not copied.
func ArrayNode(items ...Node) Node {
	if items == nil {
		items = []Node{}
	}

	return Node{kind: NodeArray, array: items}
}

// ParseNode decodes a JSON document into a Node. Numbers keep their exact
// textual form.
func ParseNode(data []byte) (Node, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var raw interface{}

	err := decoder.Decode(&raw)
	if err != nil {
		return Node{}, fmt.Errorf("%w: decoding JSON payload: %w", ErrMalformedResponse, err)
	}

	var trailing interface{}
	if err := decoder.Decode(&trailing); !errors.Is(err, io.EOF) {
		return Node{}, malformed("trailing data after JSON payload")
	}

	return nodeFromValue(raw)
}

func nodeFromValue(value interface{}) (Node, error) {
	switch typed := value.(type) {
	case nil:
		return NullNode(), nil
	case string:
		return ScalarNode(typed), nil
	case json.Number:
		return NumberNode(typed.String()), nil
	case bool:
		return BoolNode(typed), nil
	case map[string]interface{}:
		members := make(map[string]Node, len(typed))

		for key, member := range typed {
			node, err := nodeFromValue(member)
			if err != nil {
				return Node{}, err
			}

			members[key] = node
		}

		return ObjectNode(members), nil
	case []interface{}:
		items := make([]Node, 0, len(typed))

		for _, item := range typed {
			node, err := nodeFromValue(item)
			if err != nil {
				return Node{}, err
			}

			items = append(items, node)
		}

		return ArrayNode(items...), nil
	default:
		return Node{}, malformed("unsupported JSON value of type %T", value)
	}
}

// Kind returns the node shape.
func (n Node) Kind() NodeKind {
	return n.kind
}

// IsNull reports whether n is null.
func (n Node) IsNull() bool {
	return n.kind == NodeNull
}

// Scalar returns the scalar text. ok is false for non-scalar nodes.
func (n Node) Scalar() (string, bool) {
	return n.scalar, n.kind == NodeScalar
}

// ScalarType returns the JSON type of a scalar node. ok is false for
// non-scalar nodes.
func (n Node) ScalarType() (ScalarType, bool) {
	return n.scalarType, n.kind == NodeScalar
}

// Member returns the object member under key. ok is false when n is not an
// object or has no such member.
func (n Node) Member(key string) (Node, bool) {
	if n.kind != NodeObject {
		return Node{}, false
	}

	member, ok := n.object[key]

	return member, ok
}

// Keys returns the sorted member names of an object node.
func (n Node) Keys() []string {
	keys := make([]string, 0, len(n.object))
	for key := range n.object {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// Items returns the elements of an array node.
func (n Node) Items() []Node {
	return n.array
}
