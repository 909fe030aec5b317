package cohort

import (
	"context"
	"fmt"
)

// AccessOperation names the action a caller wants to perform on a metadata
// element.
type AccessOperation string

const (
	AccessOperationCreate AccessOperation = "create"
	AccessOperationRead   AccessOperation = "read"
	AccessOperationUpdate AccessOperation = "update"
	AccessOperationDelete AccessOperation = "delete"
)

// SecurityOracle decides whether a user may perform an operation on a
// typedef or a metadata instance. A nil error means the access is allowed.
type SecurityOracle interface {
	AuthorizeTypeDefAccess(ctx context.Context, userID string, op AccessOperation, td *TypeDef) error
	AuthorizeInstanceAccess(ctx context.Context, userID string, op AccessOperation, typeName, instanceGUID string) error
}

// SecurityVerifier wraps a SecurityOracle with auditing of refusals. When no
// oracle is configured the verifier denies everything: an absent security
// layer must fail closed, not open.
type SecurityVerifier struct {
	oracle SecurityOracle
	audit  AuditLog
}

// NewSecurityVerifier creates a verifier around the given oracle. oracle may
// be nil, which yields a deny-all verifier.
func NewSecurityVerifier(oracle SecurityOracle, audit AuditLog) *SecurityVerifier {
	if audit == nil {
		audit = NopAuditLog{}
	}
	return &SecurityVerifier{oracle: oracle, audit: audit}
}

// VerifyTypeDefAccess checks the oracle and audits a refusal before
// returning it.
func (v *SecurityVerifier) VerifyTypeDefAccess(ctx context.Context, userID string, op AccessOperation, td *TypeDef) error {
	var guid, name string
	if td != nil {
		guid, name = td.GUID, td.Name
	}
	if v.oracle == nil {
		err := NewUnauthorizedError(userID, guid, name)
		v.auditRefusal(userID, op, guid, name)
		return err
	}
	if err := v.oracle.AuthorizeTypeDefAccess(ctx, userID, op, td); err != nil {
		v.auditRefusal(userID, op, guid, name)
		return err
	}
	return nil
}

// VerifyInstanceAccess checks the oracle and audits a refusal before
// returning it.
func (v *SecurityVerifier) VerifyInstanceAccess(ctx context.Context, userID string, op AccessOperation, typeName, instanceGUID string) error {
	if v.oracle == nil {
		err := NewUnauthorizedError(userID, instanceGUID, typeName)
		v.auditRefusal(userID, op, instanceGUID, typeName)
		return err
	}
	if err := v.oracle.AuthorizeInstanceAccess(ctx, userID, op, typeName, instanceGUID); err != nil {
		v.auditRefusal(userID, op, instanceGUID, typeName)
		return err
	}
	return nil
}

func (v *SecurityVerifier) auditRefusal(userID string, op AccessOperation, targetGUID, targetTypeName string) {
	v.audit.LogRecord(AuditRecord{
		ComponentName: "security-verifier",
		Severity:      AuditSeverityWarning,
		MessageID:     AuditUnauthorizedAccess,
		Message:       fmt.Sprintf("user %q refused %s access to %s (%s)", userID, op, targetGUID, targetTypeName),
		SystemAction:  "The request is rejected and no metadata is returned or changed.",
		UserAction:    "Verify the user's entitlements with the security administrator.",
		Details: map[string]any{
			"userId":    userID,
			"operation": string(op),
		},
	})
}

// AllowAllOracle grants every request. Intended for development and tests.
type AllowAllOracle struct{}

func (AllowAllOracle) AuthorizeTypeDefAccess(context.Context, string, AccessOperation, *TypeDef) error {
	return nil
}

func (AllowAllOracle) AuthorizeInstanceAccess(context.Context, string, AccessOperation, string, string) error {
	return nil
}
