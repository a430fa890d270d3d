package crm

import "fmt"

const fieldTypeBoolean = "boolean"

// ResolveDependentValues expands the validFor bit vectors of a dependent
// picklist into a map from controlling value to valid dependent values.
//
// Bit i of an entry's validFor refers to the controller's i-th picklist value.
// A checkbox controller has exactly two positions: 0 for "false", 1 for "true".
func ResolveDependentValues(dependent, controller *FieldDescribe) (*DependentValues, error) {
	if !dependent.DependentPicklist || dependent.ControllerName == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotDependentPicklist, dependent.Name)
	}

	controllerValues := controllingValues(controller)

	result := &DependentValues{
		Field:      dependent.Name,
		Controller: controller.Name,
		Values:     make(map[string][]string, len(controllerValues)),
	}

	for _, value := range controllerValues {
		result.Values[value] = []string{}
	}

	for _, entry := range dependent.PicklistValues {
		if !entry.Active || entry.ValidFor == "" {
			continue
		}

		validFor, err := DecodeBitVectorBase64(entry.ValidFor)
		if err != nil {
			return nil, fmt.Errorf("decoding validFor of %s=%q: %w", dependent.Name, entry.Value, err)
		}

		for i, controllingValue := range controllerValues {
			if i >= validFor.Len() {
				break
			}

			valid, _ := validFor.Get(i)
			if valid {
				result.Values[controllingValue] = append(result.Values[controllingValue], entry.Value)
			}
		}
	}

	return result, nil
}

func controllingValues(controller *FieldDescribe) []string {
	if controller.Type == fieldTypeBoolean {
		return []string{"false", "true"}
	}

	values := make([]string, 0, len(controller.PicklistValues))
	for _, entry := range controller.PicklistValues {
		values = append(values, entry.Value)
	}

	return values
}
