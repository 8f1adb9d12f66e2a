package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageLastPage(t *testing.T) {
	tests := []struct {
		name string
		page Page
		want int
	}{
		{"empty", Page{PerPage: 25}, 1},
		{"exact", Page{PerPage: 25, Total: 50}, 2},
		{"partial", Page{PerPage: 25, Total: 51}, 3},
		{"zero per page", Page{Total: 10}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.page.LastPage())
		})
	}
}

func TestRecordCloneIsIndependent(t *testing.T) {
	r := &Record{ID: 1, EntityType: "Order", Identifier: "placed", Name: "Placed"}
	c := r.Clone()
	c.Name = "Changed"

	assert.Equal(t, "Placed", r.Name)
	assert.Equal(t, IDEntry{ID: 1, EntityType: "Order", Identifier: "placed"}, r.Entry())
	assert.True(t, IsTranslatable("description"))
	assert.False(t, IsTranslatable("identifier"))
}
