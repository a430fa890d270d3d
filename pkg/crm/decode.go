package crm

import (
	"fmt"
	"strconv"
)

// Wire keys of the record payload format.
const (
	attributesKey     = "attributes"
	attributeType     = "type"
	idKey             = "Id"
	recordsKey        = "records"
	totalSizeKey      = "totalSize"
	doneKey           = "done"
	nextRecordsURLKey = "nextRecordsUrl"
)

// member is the closed set of outcomes for one record member. Adding a new
// payload shape means adding a type here and a case in applyMember.
type member interface {
	isMember()
}

type memberField struct {
	name  string
	value *string
}

type memberParent struct {
	name   string
	record *Record
}

type memberChildren struct {
	name   string
	result *QueryResult
}

func (memberField) isMember()    {}
func (memberParent) isMember()   {}
func (memberChildren) isMember() {}

// DecodeRecordJSON decodes a single record document.
func DecodeRecordJSON(data []byte) (*Record, error) {
	node, err := ParseNode(data)
	if err != nil {
		return nil, err
	}

	return DecodeRecord(node)
}

// DecodeQueryResultJSON decodes a query result page document.
func DecodeQueryResultJSON(data []byte) (*QueryResult, error) {
	node, err := ParseNode(data)
	if err != nil {
		return nil, err
	}

	return DecodeQueryResult(node)
}

// DecodeRecord builds a Record from a record payload node. Nested
// relationships are decoded recursively. On error nothing is returned.
func DecodeRecord(node Node) (*Record, error) {
	if node.Kind() != NodeObject {
		return nil, malformed("record payload is %s, want object", node.Kind())
	}

	typeName, err := recordType(node)
	if err != nil {
		return nil, err
	}

	id, err := recordID(node)
	if err != nil {
		return nil, err
	}

	record := NewRecord(typeName, id)

	for _, key := range node.Keys() {
		if key == attributesKey || key == idKey {
			continue
		}

		value, _ := node.Member(key)

		decoded, err := classifyMember(key, value)
		if err != nil {
			return nil, fmt.Errorf("decoding %s.%s: %w", typeName, key, err)
		}

		applyMember(record, decoded)
	}

	return record, nil
}

// DecodeQueryResult builds a QueryResult from a query page payload node.
func DecodeQueryResult(node Node) (*QueryResult, error) {
	if node.Kind() != NodeObject {
		return nil, malformed("query result payload is %s, want object", node.Kind())
	}

	totalSize, err := requiredInt(node, totalSizeKey)
	if err != nil {
		return nil, err
	}

	done, err := requiredBool(node, doneKey)
	if err != nil {
		return nil, err
	}

	cursor := ""

	if !done {
		cursorNode, ok := node.Member(nextRecordsURLKey)
		if !ok {
			return nil, malformed("unfinished query result has no %s", nextRecordsURLKey)
		}

		value, isScalar := cursorNode.Scalar()
		if !isScalar || value == "" {
			return nil, malformed("%s is %s, want non-empty scalar", nextRecordsURLKey, cursorNode.Kind())
		}

		cursor = value
	}

	recordsNode, ok := node.Member(recordsKey)
	if !ok {
		return nil, malformed("query result has no %s", recordsKey)
	}

	if recordsNode.Kind() != NodeArray {
		return nil, malformed("%s is %s, want array", recordsKey, recordsNode.Kind())
	}

	items := recordsNode.Items()
	records := make([]*Record, 0, len(items))

	for i, item := range items {
		record, err := DecodeRecord(item)
		if err != nil {
			return nil, fmt.Errorf("decoding %s[%d]: %w", recordsKey, i, err)
		}

		records = append(records, record)
	}

	return NewQueryResult(records, totalSize, done, cursor)
}

// classifyMember sniffs the shape of one record member.
func classifyMember(name string, value Node) (member, error) {
	switch value.Kind() {
	case NodeNull:
		return memberField{name: name}, nil

	case NodeScalar:
		text, _ := value.Scalar()

		return memberField{name: name, value: &text}, nil

	case NodeObject:
		if _, ok := value.Member(attributesKey); ok {
			parent, err := DecodeRecord(value)
			if err != nil {
				return nil, err
			}

			return memberParent{name: name, record: parent}, nil
		}

		if _, ok := value.Member(recordsKey); ok {
			children, err := DecodeQueryResult(value)
			if err != nil {
				return nil, err
			}

			return memberChildren{name: name, result: children}, nil
		}

		return nil, malformed("object member has neither %s nor %s", attributesKey, recordsKey)

	case NodeArray:
		return nil, malformed("unexpected array member")

	default:
		return nil, malformed("unexpected %s member", value.Kind())
	}
}

func applyMember(record *Record, decoded member) {
	switch typed := decoded.(type) {
	case memberField:
		record.SetField(typed.name, typed.value)
	case memberParent:
		record.SetParent(typed.name, typed.record)
	case memberChildren:
		record.SetChildren(typed.name, typed.result)
	}
}

func recordType(node Node) (string, error) {
	attributes, ok := node.Member(attributesKey)
	if !ok {
		return "", malformed("record has no %s", attributesKey)
	}

	if attributes.Kind() != NodeObject {
		return "", malformed("%s is %s, want object", attributesKey, attributes.Kind())
	}

	typeNode, ok := attributes.Member(attributeType)
	if !ok {
		return "", malformed("%s has no %s", attributesKey, attributeType)
	}

	typeName, ok := typeNode.Scalar()
	if !ok {
		return "", malformed("%s.%s is %s, want scalar", attributesKey, attributeType, typeNode.Kind())
	}

	return typeName, nil
}

func recordID(node Node) (*ID, error) {
	idNode, ok := node.Member(idKey)
	if !ok || idNode.IsNull() {
		return nil, nil //nolint:nilnil // a missing identifier is a valid state
	}

	raw, ok := idNode.Scalar()
	if !ok {
		return nil, malformed("%s is %s, want scalar", idKey, idNode.Kind())
	}

	id, err := NewID(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	return &id, nil
}

func requiredInt(node Node, key string) (int, error) {
	member, ok := node.Member(key)
	if !ok {
		return 0, malformed("missing %s", key)
	}

	text, ok := member.Scalar()
	if scalarType, _ := member.ScalarType(); !ok || scalarType != ScalarNumber {
		return 0, malformed("%s is %s, want number", key, describeNode(member))
	}

	value, err := strconv.Atoi(text)
	if err != nil || value < 0 {
		return 0, malformed("%s is %s, want non-negative integer", key, text)
	}

	return value, nil
}

func requiredBool(node Node, key string) (bool, error) {
	member, ok := node.Member(key)
	if !ok {
		return false, malformed("missing %s", key)
	}

	text, ok := member.Scalar()
	if scalarType, _ := member.ScalarType(); !ok || scalarType != ScalarBool {
		return false, malformed("%s is %s, want boolean", key, describeNode(member))
	}

	return text == "true", nil
}

func describeNode(node Node) string {
	if scalarType, ok := node.ScalarType(); ok {
		return scalarType.String()
	}

	return node.Kind().String()
}
