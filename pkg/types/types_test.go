package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestInstanceRecordValidate tests required field and status validation
func TestInstanceRecordValidate(t *testing.T) {
	valid := InstanceRecord{
		InstanceID:     "i-1",
		GroupName:      "g1",
		PrivateDNSName: "ip-10-0-0-1",
		Status:         InstanceStatusDraining,
	}

	tests := []struct {
		name    string
		mutate  func(r *InstanceRecord)
		wantErr bool
	}{
		{name: "valid record", mutate: func(r *InstanceRecord) {}},
		{name: "missing instance id", mutate: func(r *InstanceRecord) { r.InstanceID = "" }, wantErr: true},
		{name: "missing group", mutate: func(r *InstanceRecord) { r.GroupName = "" }, wantErr: true},
		{name: "missing dns name", mutate: func(r *InstanceRecord) { r.PrivateDNSName = "" }, wantErr: true},
		{name: "missing status", mutate: func(r *InstanceRecord) { r.Status = "" }, wantErr: true},
		{name: "unknown status", mutate: func(r *InstanceRecord) { r.Status = "TERMINATED" }, wantErr: true},
		{name: "spot terminating", mutate: func(r *InstanceRecord) { r.Status = InstanceStatusSpotTerminating }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, ErrorKindInvalid, KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestKindOf tests error classification through wrapping
func TestKindOf(t *testing.T) {
	base := NewError(ErrorKindConflict, "register", errors.New("already exists"))
	wrapped := fmt.Errorf("controller: %w", base)

	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, ErrorKindConflict, KindOf(base))
	assert.Equal(t, ErrorKindConflict, KindOf(wrapped))
	assert.Equal(t, ErrorKindTransient, KindOf(errors.New("connection reset")))

	assert.True(t, IsKind(wrapped, ErrorKindNotFound, ErrorKindConflict))
	assert.False(t, IsKind(wrapped, ErrorKindNotFound))
	assert.False(t, IsKind(nil, ErrorKindTransient))
	assert.Contains(t, base.Error(), "register")
	assert.ErrorIs(t, wrapped, base.Err)
}

// TestDrainProgressFlags tests flag accessors
func TestDrainProgressFlags(t *testing.T) {
	p := DrainProgress{Claimed: true}
	for _, f := range Flags {
		assert.False(t, p.Flag(f), f)
		p = p.WithFlag(f)
		assert.True(t, p.Flag(f), f)
	}
	assert.True(t, p.Cordoned)
	assert.True(t, p.DrainConfirmedEmpty)
	assert.True(t, p.AwaitingTermination)
	assert.False(t, Flag("bogus").Valid())
}

func TestInstanceStatusDraining(t *testing.T) {
	assert.False(t, InstanceStatusActive.Draining())
	assert.True(t, InstanceStatusDraining.Draining())
	assert.True(t, InstanceStatusSpotTerminating.Draining())
}
