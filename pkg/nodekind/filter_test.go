package nodekind

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterSettingsValidateBasic(t *testing.T) {
	valid := &FilterSettings{Mode: FilterBasic, Column: "amount", Operator: OpGreaterThan, Value: 5}
	require.NoError(t, valid.Validate())

	missingColumn := &FilterSettings{Mode: FilterBasic, Operator: OpEquals}
	require.Error(t, missingColumn.Validate())

	badOperator := &FilterSettings{Mode: FilterBasic, Column: "x", Operator: "nonsense"}
	require.Error(t, badOperator.Validate())

	betweenMissingValue2 := &FilterSettings{Mode: FilterBasic, Column: "x", Operator: OpBetween, Value: 1}
	require.Error(t, betweenMissingValue2.Validate())
}

func TestFilterSettingsValidateAdvanced(t *testing.T) {
	valid := &FilterSettings{Mode: FilterAdvanced, Predicate: "amount > 5"}
	require.NoError(t, valid.Validate())

	empty := &FilterSettings{Mode: FilterAdvanced}
	require.Error(t, empty.Validate())
}

func TestFilterSettingsValidateUnknownMode(t *testing.T) {
	s := &FilterSettings{Mode: "weird"}
	require.Error(t, s.Validate())
}

func TestMigrateLegacyOperator(t *testing.T) {
	op, err := MigrateLegacyOperator("=")
	require.NoError(t, err)
	require.Equal(t, OpEquals, op)

	op, err = MigrateLegacyOperator(string(OpContains))
	require.NoError(t, err)
	require.Equal(t, OpContains, op)

	_, err = MigrateLegacyOperator("???")
	require.Error(t, err)
}

func TestFilterExpressionBasicOperators(t *testing.T) {
	cases := []struct {
		name string
		s    *FilterSettings
		want string
	}{
		{"equals", &FilterSettings{Mode: FilterBasic, Column: "a", Operator: OpEquals, Value: "x"}, `a == "x"`},
		{"is_null", &FilterSettings{Mode: FilterBasic, Column: "a", Operator: OpIsNull}, "a == nil"},
		{"between", &FilterSettings{Mode: FilterBasic, Column: "a", Operator: OpBetween, Value: 1, Value2: 10}, "a >= 1 && a <= 10"},
		{"in", &FilterSettings{Mode: FilterBasic, Column: "a", Operator: OpIn, Value: []any{"x", "y"}}, `a in ["x", "y"]`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := filterExpression(c.s)
			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}
}

func TestFilterExpressionAdvancedPassesThrough(t *testing.T) {
	s := &FilterSettings{Mode: FilterAdvanced, Predicate: "amount > 5 && name startsWith \"a\""}
	got, err := filterExpression(s)
	require.NoError(t, err)
	require.Equal(t, s.Predicate, got)
}
