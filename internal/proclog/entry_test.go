package proclog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMacro_Functions(t *testing.T) {
	m := Macro{
		{Function: "median", Order: 3},
		{Function: "level", Order: 1},
		{Function: "level", Order: 5},
		{Function: "scale", Order: 4},
	}
	assert.Equal(t, []string{"level", "median", "scale"}, m.Functions())
}

func TestEntry_String(t *testing.T) {
	e := Entry{Function: "median", RawParams: "size=5, mode=square"}
	assert.Equal(t, "proc::median(size=5, mode=square)", e.String())

	assert.Equal(t, "proc::level()", Entry{Function: "level"}.String())
}
