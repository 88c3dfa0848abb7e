package submission

import (
	"errors"
	"fmt"
	"strings"

	"loan-appraiser/internal/appraisal/fields"
	"loan-appraiser/internal/appraisal/loantype"
	"loan-appraiser/internal/common/validation"
)

var ErrInvalidPayload = errors.New("INVALID_SUBMISSION_PAYLOAD")

// PayloadSchema describes the payload envelope for lt: the loan type pinned, every
// relevant field typed, required scalars listed. Values may arrive as form strings,
// so numbers and checkboxes also accept strings.
func PayloadSchema(lt loantype.LoanType) (validation.JSONSchema, error) {
	steps, err := loantype.RulesFor(lt)
	if err != nil {
		return validation.JSONSchema{}, err
	}

	props := make(map[string]validation.Property)
	var required []string
	for _, step := range steps {
		for _, f := range step.Fields {
			if f.Type == fields.TypeFile {
				continue
			}
			props[f.Name] = propertyFor(f)
			if f.Rule.Required {
				required = append(required, f.Name)
			}
		}
	}

	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"loan_type": {Type: "string", Enum: []interface{}{string(lt)}},
			"fields":    {Type: "object", Properties: props, Required: required},
			"files":     {Type: "object"},
		},
		Required:             []string{"loan_type", "fields"},
		AdditionalProperties: false,
	}, nil
}

func propertyFor(f fields.Field) validation.Property {
	p := validation.Property{Description: f.Label}
	switch f.Type {
	case fields.TypeNumber:
		p.Type = []string{"number", "string"}
	case fields.TypeCheckbox:
		p.Type = []string{"boolean", "string"}
	case fields.TypeSelect:
		p.Type = "string"
		for _, o := range f.Options {
			p.Enum = append(p.Enum, o)
		}
		if !f.Rule.Required {
			p.Enum = append(p.Enum, "")
		}
	default:
		p.Type = "string"
	}
	return p
}

// CheckPayload validates p against the schema of its loan type.
func CheckPayload(p Payload) error {
	schema, err := PayloadSchema(p.LoanType)
	if err != nil {
		return err
	}
	files := p.Files
	if files == nil {
		files = map[string]fields.FileRef{}
	}
	res, err := validation.ValidateInput(map[string]interface{}{
		"loan_type": string(p.LoanType),
		"fields":    p.Fields,
		"files":     files,
	}, schema)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !res.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(res.GetErrorMessages(), "; "))
	}
	return nil
}
