package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMoveID(t *testing.T) {
	tests := []struct {
		name     string
		ids      []int64
		id       int64
		position int
		want     []int64
		ok       bool
	}{
		{"move to front", []int64{1, 2, 3}, 3, 0, []int64{3, 1, 2}, true},
		{"move to back", []int64{1, 2, 3}, 1, 2, []int64{2, 3, 1}, true},
		{"same position", []int64{1, 2, 3}, 2, 1, []int64{1, 2, 3}, true},
		{"negative clamps to front", []int64{1, 2, 3}, 2, -5, []int64{2, 1, 3}, true},
		{"past end clamps to back", []int64{1, 2, 3}, 1, 99, []int64{2, 3, 1}, true},
		{"missing id", []int64{1, 2, 3}, 9, 0, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := moveID(tt.ids, tt.id, tt.position)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsDuplicateKey(t *testing.T) {
	assert.False(t, isDuplicateKey(nil))
	assert.False(t, isDuplicateKey(errors.New("other")))
	assert.True(t, isDuplicateKey(gorm.ErrDuplicatedKey))
	assert.True(t, isDuplicateKey(fmt.Errorf("wrapped: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})))
	assert.False(t, isDuplicateKey(&mysql.MySQLError{Number: 1146}))
}
