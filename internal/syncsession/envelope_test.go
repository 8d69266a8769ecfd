package syncsession

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationEnvelope_PassesThroughResultUnchanged(t *testing.T) {
	env := OperationEnvelope{StartMessage: "start", CompleteMessage: "done"}

	assert.NoError(t, env.Run(func() error { return nil }))

	boom := errors.New("boom")
	assert.ErrorIs(t, env.Run(func() error { return boom }), boom)
}
