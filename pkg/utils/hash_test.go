package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashStringDeterministic(t *testing.T) {
	a := HashString("main engine")
	b := HashString("main engine")
	c := HashString("main engine ")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestHashRequestBodyIgnoresKeyOrder(t *testing.T) {
	a := HashRequestBody(map[string]interface{}{
		"title":        "Replace impeller",
		"equipment_id": "eq-1",
		"priority":     "high",
	})
	b := HashRequestBody(map[string]interface{}{
		"priority":     "high",
		"equipment_id": "eq-1",
		"title":        "Replace impeller",
	})

	assert.Equal(t, a, b)
}

func TestHashRequestBodyDistinguishesValues(t *testing.T) {
	a := HashRequestBody(map[string]interface{}{"title": "Replace impeller"})
	b := HashRequestBody(map[string]interface{}{"title": "Replace gasket"})

	assert.NotEqual(t, a, b)
}
