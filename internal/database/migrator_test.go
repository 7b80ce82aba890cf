package database

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestDB_Migrator_RejectsBadDirectory(t *testing.T) {
	db := &DB{logger: zerolog.Nop()}

	_, err := db.Migrator("")
	assert.ErrorContains(t, err, "migration directory is required")

	_, err = db.Migrator("testdata/does-not-exist")
	assert.ErrorContains(t, err, "migration directory")
}
