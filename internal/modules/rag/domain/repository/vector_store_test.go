package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadataFilterExpr(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		want   string
	}{
		{name: "plain", userID: "U123", want: `user_id == "U123"`},
		{name: "double quote", userID: `a"b`, want: `user_id == "a\"b"`},
		{name: "backslash", userID: `a\b`, want: `user_id == "a\\b"`},
		{name: "injection attempt", userID: `x" || user_id != "`, want: `user_id == "x\" || user_id != \""`},
		{name: "control byte kept raw", userID: "a\x00b\a", want: "user_id == \"a\x00b\a\""},
		{name: "unicode kept raw", userID: "用户-é", want: `user_id == "用户-é"`},
		{name: "surrounding spaces kept", userID: " u1 ", want: `user_id == " u1 "`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ByUser(tt.userID).Expr())
		})
	}
}

func TestMetadataFilterMatchIsExact(t *testing.T) {
	assert.True(t, ByUser("u1").Match(ChunkRecord{UserID: "u1"}))
	assert.False(t, ByUser("u1").Match(ChunkRecord{UserID: "u1 "}))
	assert.False(t, ByUser("u1 ").Match(ChunkRecord{UserID: "u1"}))
	assert.False(t, ByUser("U1").Match(ChunkRecord{UserID: "u1"}))

	assert.True(t, ByUser("").IsEmpty())
	assert.True(t, ByUser(" \t").IsEmpty())
	assert.False(t, ByUser(" \t").Match(ChunkRecord{UserID: " \t"}))
}
