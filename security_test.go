package cohort

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// denyUserOracle refuses one specific user and allows everyone else.
type denyUserOracle struct {
	deniedUser string
}

func (o denyUserOracle) AuthorizeTypeDefAccess(_ context.Context, userID string, _ AccessOperation, td *TypeDef) error {
	if userID == o.deniedUser {
		return NewUnauthorizedError(userID, td.GUID, td.Name)
	}
	return nil
}

func (o denyUserOracle) AuthorizeInstanceAccess(_ context.Context, userID string, _ AccessOperation, typeName, guid string) error {
	if userID == o.deniedUser {
		return NewUnauthorizedError(userID, guid, typeName)
	}
	return nil
}

func TestSecurityVerifier_NilOracleDeniesAll(t *testing.T) {
	recorder := &recordingAuditLog{}
	verifier := NewSecurityVerifier(nil, recorder)

	err := verifier.VerifyTypeDefAccess(context.Background(), "alice", AccessOperationRead, newEntityTypeDef())
	require.Error(t, err)
	assert.True(t, IsUnauthorizedError(err))

	require.Len(t, recorder.records, 1)
	assert.Equal(t, AuditUnauthorizedAccess, recorder.records[0].MessageID)
}

func TestSecurityVerifier_OracleDecides(t *testing.T) {
	recorder := &recordingAuditLog{}
	verifier := NewSecurityVerifier(denyUserOracle{deniedUser: "mallory"}, recorder)
	td := newEntityTypeDef()

	assert.NoError(t, verifier.VerifyTypeDefAccess(context.Background(), "alice", AccessOperationRead, td))
	assert.Empty(t, recorder.records)

	err := verifier.VerifyTypeDefAccess(context.Background(), "mallory", AccessOperationUpdate, td)
	require.Error(t, err)
	assert.True(t, IsUnauthorizedError(err))
	assert.Len(t, recorder.records, 1)
}

func TestSecurityVerifier_InstanceAccess(t *testing.T) {
	verifier := NewSecurityVerifier(denyUserOracle{deniedUser: "mallory"}, NopAuditLog{})

	assert.NoError(t, verifier.VerifyInstanceAccess(context.Background(), "alice", AccessOperationRead, "Asset", "guid-1"))

	err := verifier.VerifyInstanceAccess(context.Background(), "mallory", AccessOperationDelete, "Asset", "guid-1")
	assert.True(t, IsUnauthorizedError(err))
}

func TestAllowAllOracle(t *testing.T) {
	verifier := NewSecurityVerifier(AllowAllOracle{}, NopAuditLog{})

	assert.NoError(t, verifier.VerifyTypeDefAccess(context.Background(), "anyone", AccessOperationDelete, newEntityTypeDef()))
	assert.NoError(t, verifier.VerifyInstanceAccess(context.Background(), "anyone", AccessOperationCreate, "Asset", "g"))
}
