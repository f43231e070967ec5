package debug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallerName(t *testing.T) {
	assert.Equal(t, "debug.TestCallerName", CallerName())
	assert.Equal(t, "debug.(*testCaller).callerName", (&testCaller{}).callerName())

	t.Run("closure is named after parent", func(t *testing.T) {
		assert.Equal(t, "debug.TestCallerName", CallerName())
	})
	t.Run("skip", func(t *testing.T) {
		assert.Equal(t, "debug.intermediateFunction", deepHelperFunction())
	})
	t.Run("excessive skip", func(t *testing.T) {
		assert.Equal(t, "unknown", CallerName(100))
	})
}

func deepHelperFunction() string {
	return intermediateFunction()
}

func intermediateFunction() string {
	return helperFunction()
}

func helperFunction() string {
	return CallerName(1)
}

type testCaller struct{}

func (tc *testCaller) callerName() string {
	return CallerName()
}
