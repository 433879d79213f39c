package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRule(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr string
	}{
		{"valid", Rule{Name: "r", Topic: "inventory/+", Conditions: &Conditions{
			Operator: OperatorAnd,
			Items:    []Condition{{"properties.tenant", OperatorEquals, "acme"}},
		}}, ""},
		{"valid without topic", Rule{Name: "r"}, ""},
		{"missing name", Rule{}, "name"},
		{"hash not last", Rule{Name: "r", Topic: "a/#/b"}, "topic"},
		{"partial plus", Rule{Name: "r", Topic: "a/b+"}, "topic"},
		{"empty middle segment", Rule{Name: "r", Topic: "a//b"}, "topic"},
		{"unknown reject", Rule{Name: "r", Reject: "teapot"}, "reject"},
		{"bad group operator", Rule{Name: "r", Conditions: &Conditions{Operator: "xor"}}, "conditions.operator"},
		{"empty field", Rule{Name: "r", Conditions: &Conditions{
			Operator: OperatorAnd,
			Items:    []Condition{{"", OperatorEquals, 1}},
		}}, "conditions.items[0]"},
		{"bad field", Rule{Name: "r", Conditions: &Conditions{
			Operator: OperatorAnd,
			Items:    []Condition{{"1abc", OperatorEquals, 1}},
		}}, "conditions.items[0]"},
		{"bad operator", Rule{Name: "r", Conditions: &Conditions{
			Operator: OperatorAnd,
			Items:    []Condition{{"a", "like", 1}},
		}}, "conditions.items[0]"},
		{"bad regex", Rule{Name: "r", Conditions: &Conditions{
			Operator: OperatorAnd,
			Items:    []Condition{{"a", OperatorMatches, "("}},
		}}, "conditions.items[0]"},
		{"non string regex", Rule{Name: "r", Conditions: &Conditions{
			Operator: OperatorAnd,
			Items:    []Condition{{"a", OperatorMatches, 5}},
		}}, "conditions.items[0]"},
		{"nested group error", Rule{Name: "r", Conditions: &Conditions{
			Operator: OperatorAnd,
			Groups:   []Conditions{{Operator: "nand"}},
		}}, "conditions.groups[0].operator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRule(&tt.rule)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			if assert.ErrorAs(t, err, &verr) {
				assert.Equal(t, tt.wantErr, verr.Field)
			}
		})
	}
}
