package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/coordinator-agent/catalog"
)

func candidate(input, output string) catalog.Candidate {
	return catalog.Candidate{
		Metadata: catalog.CandidateMetadata{
			ContractInput:  input,
			ContractOutput: output,
		},
	}
}

func TestOrder_SimpleChain(t *testing.T) {
	candidates := map[string]catalog.Candidate{
		"customer-service": candidate(
			`{"type":"object","properties":{"customer_id":{"type":"integer"}},"required":["customer_id"]}`,
			`{"type":"object","properties":{"customer_tier":{"type":"string"}}}`,
		),
		"pricing-service": candidate(
			`{"type":"object","properties":{"customer_tier":{"type":"string"},"vehicle_type":{"type":"string"}},"required":["customer_tier","vehicle_type"]}`,
			`{"type":"object","properties":{"total_price":{"type":"number"}}}`,
		),
	}

	order, err := Order([]string{"pricing-service", "customer-service"}, candidates, map[string]bool{"vehicle_type": true})

	require.NoError(t, err)
	assert.Equal(t, []string{"customer-service", "pricing-service"}, order)
}

func TestOrder_CascadesWithinSamePass(t *testing.T) {
	candidates := map[string]catalog.Candidate{
		"a": candidate(`{"type":"object","properties":{"x":{"type":"string"}},"required":["x"]}`,
			`{"type":"object","properties":{"y":{"type":"string"}}}`),
		"b": candidate(`{"type":"object","properties":{"y":{"type":"string"}},"required":["y"]}`,
			`{"type":"object","properties":{"z":{"type":"string"}}}`),
	}

	order, err := Order([]string{"a", "b"}, candidates, map[string]bool{"x": true})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestOrder_UnresolvedReturnsPartialOrderAndError(t *testing.T) {
	candidates := map[string]catalog.Candidate{
		"needs-missing": candidate(`{"type":"object","properties":{"ghost":{"type":"string"}},"required":["ghost"]}`, `{}`),
		"resolvable":    candidate(`{}`, `{}`),
	}

	order, err := Order([]string{"needs-missing", "resolvable"}, candidates, map[string]bool{})

	require.Error(t, err)
	var unresolved *UnresolvedError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, []string{"needs-missing"}, unresolved.Remaining)
	assert.Equal(t, []string{"resolvable"}, order)
}

func TestOrder_TiesBrokenByInputPosition(t *testing.T) {
	candidates := map[string]catalog.Candidate{
		"b": candidate(`{}`, `{}`),
		"a": candidate(`{}`, `{}`),
	}

	order, err := Order([]string{"b", "a"}, candidates, map[string]bool{})

	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, order)
}
