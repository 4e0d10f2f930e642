package jitcategory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaselineInterpreterExact(t *testing.T) {
	c := ClassifyJitSymbol("BaselineInterpreter")
	assert.Equal(t, "Baseline Interpreter", c.Category)
	assert.Equal(t, JSFrameBaselineInterpreter, c.JS.Kind)
}

func TestBaselineInterpreterStub(t *testing.T) {
	c := ClassifyJitSymbol("BaselineInterpreter: someFunc")
	assert.Equal(t, JSFrameBaselineInterpreterStub, c.JS.Kind)
	assert.Equal(t, "someFunc", c.JS.Name)
}

func TestIonICWithFunctionName(t *testing.T) {
	c := ClassifyJitSymbol("IonIC: GetProp : myFunction")
	assert.Equal(t, "IonIC", c.Category)
	assert.Equal(t, JSFrameRegular, c.JS.Kind)
	assert.Equal(t, "myFunction", c.JS.Name)
}

func TestSelfHostedDetection(t *testing.T) {
	c := ClassifyJitSymbol("Baseline: foo (self-hosted:bar)")
	assert.Equal(t, SelfHosted, c.JS.Host)
}

func TestCatchAllFallsToJIT(t *testing.T) {
	c := ClassifyJitSymbol("something-unrecognized")
	assert.Equal(t, "JIT", c.Category)
	assert.False(t, c.IsJS)
}
