package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/recordstore/internal/apperr"
)

func TestRequire(t *testing.T) {
	assert.NoError(t, Require(NewScope("org-1", "")))
	assert.Equal(t, apperr.KindTenantRequired, apperr.KindOf(Require(Scope{})))
	assert.Equal(t, apperr.KindTenantRequired, apperr.KindOf(Require(NewScope("   ", "u"))))
	assert.Equal(t, apperr.KindInvalidInput, apperr.KindOf(Require(NewScope(" org-1", "u"))))
}

func TestCheck(t *testing.T) {
	s := NewScope("org-1", "u-1")

	assert.NoError(t, Check(s, "entity", ""))
	assert.NoError(t, Check(s, "entity", "org-1"))

	err := Check(s, "entity", "org-2")
	assert.Equal(t, apperr.KindTenantMismatch, apperr.KindOf(err))
	e := apperr.As(err)
	assert.Equal(t, "org-1", e.Details["declared"])
	assert.Equal(t, "org-2", e.Details["actual"])

	assert.Equal(t, apperr.KindTenantRequired, apperr.KindOf(Check(Scope{}, "entity", "org-1")))
}

func TestStamp(t *testing.T) {
	s := NewScope("org-1", "")
	assert.Equal(t, "org-1", Stamp(s, ""))
	assert.Equal(t, "org-1", Stamp(s, "org-1"))
}

func TestOwns(t *testing.T) {
	s := NewScope("org-1", "")
	assert.NoError(t, Owns(s, "entity", "e-1", "org-1"))

	err := Owns(s, "entity", "e-1", "org-2")
	assert.Equal(t, apperr.KindTenantMismatch, apperr.KindOf(err))
	assert.Equal(t, "e-1", apperr.As(err).Details["id"])
}

func TestActorOr(t *testing.T) {
	assert.Equal(t, "system", NewScope("o", "").ActorOr("system"))
	assert.Equal(t, "u-1", NewScope("o", "u-1").ActorOr("system"))
}
