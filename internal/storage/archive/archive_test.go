package archive

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/optionagent/agent/internal/domain"
)

func TestNewWithEmptyBucketDisablesArchival(t *testing.T) {
	a, err := New(context.Background(), "", "us-east-1", zerolog.Nop())
	assert.NoError(t, err)
	assert.Nil(t, a)
}

func TestNilArchiverPersistIsNoop(t *testing.T) {
	var a *Archiver
	err := a.PersistRawOptions(context.Background(), domain.RawOptionSnapshot{RunID: "run-1", Symbol: "XYZ"})
	assert.NoError(t, err)
}
