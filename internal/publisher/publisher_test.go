package publisher

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name          string
		err           error
		wantTransient bool
		wantClass     string
	}{
		{"nil", nil, true, "none"},
		{"transient", Transient(base), true, "transient"},
		{"permanent", Permanent(base), false, "permanent"},
		{"unclassified defaults to transient", base, true, "transient"},
		{"wrapped permanent", errors.Join(errors.New("ctx"), Permanent(base)), false, "permanent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantTransient, IsTransient(tt.err))
			assert.Equal(t, tt.wantClass, Classification(tt.err))
		})
	}
}

func TestTransient_NilPassthrough(t *testing.T) {
	assert.Nil(t, Transient(nil))
	assert.Nil(t, Permanent(nil))
}

func TestErrorWrapping(t *testing.T) {
	base := errors.New("connection refused")

	terr := Transient(base)
	assert.ErrorIs(t, terr, base)
	assert.Contains(t, terr.Error(), "transient publish error")

	perr := Permanent(base)
	assert.ErrorIs(t, perr, base)
	assert.Contains(t, perr.Error(), "permanent publish error")
}
