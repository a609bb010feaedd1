// internal/app/reconcile/engine.go
//
// Package reconcile merges identity-provider claims into local user,
// organization, membership and group records. Internal ids survive
// repeated logins; only provider-owned fields are refreshed.
package reconcile

import (
	"context"
	"strings"

	"go.uber.org/zap"

	membershipstore "github.com/dalemusser/esiagate/internal/app/store/memberships"
	orggroupstore "github.com/dalemusser/esiagate/internal/app/store/orggroups"
	organizationstore "github.com/dalemusser/esiagate/internal/app/store/organizations"
	tokenstore "github.com/dalemusser/esiagate/internal/app/store/tokens"
	userstore "github.com/dalemusser/esiagate/internal/app/store/users"
	"github.com/dalemusser/esiagate/internal/app/system/gwerr"
	"github.com/dalemusser/esiagate/internal/domain/models"
	"github.com/dalemusser/esiagate/internal/esia"
)

// groupURLSeparator is the fixed segment the provider places before a
// group's mnemonic in its URL.
const groupURLSeparator = "/grps/"

// Engine coordinates the upserts for one authentication's claim set.
type Engine struct {
	users       *userstore.Store
	orgs        *organizationstore.Store
	memberships *membershipstore.Store
	groups      *orggroupstore.Store
	tokens      *tokenstore.Store
	logger      *zap.Logger
}

// New creates a reconciliation engine over the given stores.
func New(
	users *userstore.Store,
	orgs *organizationstore.Store,
	memberships *membershipstore.Store,
	groups *orggroupstore.Store,
	tokens *tokenstore.Store,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		users:       users,
		orgs:        orgs,
		memberships: memberships,
		groups:      groups,
		tokens:      tokens,
		logger:      logger,
	}
}

// User upserts a user from a userinfo claim set. The external subject
// id comes from the uid claim, falling back to sub.
func (e *Engine) User(ctx context.Context, sub string, info map[string]any) (*models.User, error) {
	esiaUID := sub
	if v := claimString(info, "uid"); v != nil {
		esiaUID = *v
	}
	if esiaUID == "" {
		return nil, gwerr.Validation("subject identifier missing from claims", nil)
	}

	u, created, err := e.users.Upsert(ctx, esiaUID, userstore.Patch{
		FirstName:         claimString(info, "firstName"),
		LastName:          claimString(info, "lastName"),
		MiddleName:        claimString(info, "middleName"),
		Trusted:           boolPtr(claimBool(info, "trusted")),
		Status:            claimString(info, "status"),
		Verifying:         boolPtr(claimBool(info, "verifying")),
		RIDDoc:            claimInt64(info, "rIdDoc"),
		ContainsUpCfmCode: boolPtr(claimBool(info, "containsUpCfmCode")),
		ETag:              claimString(info, "eTag"),
		UpdatedOn:         claimInt64(info, "updatedOn"),
		StateFacts:        claimJSON(info, "stateFacts"),
	})
	if err != nil {
		return nil, err
	}

	if created {
		e.logger.Info("user created from claims",
			zap.Int64("user_id", u.ID), zap.String("esia_uid", esiaUID))
	} else {
		e.logger.Info("user updated from claims",
			zap.Int64("user_id", u.ID), zap.String("esia_uid", esiaUID))
	}
	return u, nil
}

// Token stores a freshly exchanged token for the user, deactivating any
// previous active token.
func (e *Engine) Token(ctx context.Context, userID int64, tok *esia.TokenResponse) (*models.UserToken, error) {
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return e.tokens.Create(ctx, models.UserToken{
		UserID:             userID,
		AccessToken:        tok.AccessToken,
		RefreshToken:       tok.RefreshToken,
		TokenType:          tokenType,
		ExpiresIn:          tok.ExpiresIn,
		Scope:              tok.Scope,
		IDToken:            tok.IDToken,
		CreatedAtTimestamp: tok.CreatedAt,
	})
}

// Organization upserts one organization from its claim map and
// refreshes the user's membership in it. A liquidated organization
// ends up inactive regardless of which branch runs.
func (e *Engine) Organization(ctx context.Context, userID int64, info map[string]any) (*models.Organization, error) {
	oid := claimInt64(info, "oid")
	if oid == nil {
		return nil, gwerr.Validation("organization oid missing from claims", nil)
	}

	o, created, err := e.orgs.Upsert(ctx, *oid, organizationstore.Patch{
		PrnOID:                 claimInt64(info, "prnOid"),
		FullName:               claimString(info, "fullName"),
		ShortName:              claimString(info, "shortName"),
		OGRN:                   claimString(info, "ogrn"),
		INN:                    claimString(info, "inn"),
		KPP:                    claimString(info, "kpp"),
		OrgType:                claimString(info, "type"),
		Leg:                    claimString(info, "leg"),
		Phone:                  claimString(info, "phone"),
		Email:                  claimString(info, "email"),
		IsChief:                boolPtr(claimBool(info, "chief")),
		IsAdmin:                boolPtr(claimBool(info, "admin")),
		IsActive:               boolPtr(!claimBool(info, "isLiquidated")),
		HasRightOfSubstitution: boolPtr(claimBool(info, "hasRightOfSubstitution")),
		HasApprovalTabAccess:   boolPtr(claimBool(info, "hasApprovalTabAccess")),
		IsLiquidated:           boolPtr(claimBool(info, "isLiquidated")),
		StaffCount:             claimInt64(info, "staffCount"),
		ETag:                   claimString(info, "eTag"),
	})
	if err != nil {
		return nil, err
	}

	if created {
		e.logger.Info("organization created from claims",
			zap.Int64("organization_id", o.ID), zap.Int64("esia_oid", *oid))
	} else {
		e.logger.Info("organization updated from claims",
			zap.Int64("organization_id", o.ID), zap.Int64("esia_oid", *oid))
	}

	if _, _, err := e.memberships.Upsert(ctx, userID, o.ID, membershipstore.Flags{
		IsChief:                claimBool(info, "chief"),
		IsAdmin:                claimBool(info, "admin"),
		HasRightOfSubstitution: claimBool(info, "hasRightOfSubstitution"),
		HasApprovalTabAccess:   claimBool(info, "hasApprovalTabAccess"),
	}); err != nil {
		return nil, err
	}

	return o, nil
}

// Organizations processes the orgs claim list. A failure on one
// organization is logged and skipped; the batch continues.
func (e *Engine) Organizations(ctx context.Context, userID int64, info map[string]any) []models.Organization {
	raw, _ := info["orgs"].([]any)

	processed := make([]models.Organization, 0, len(raw))
	for _, item := range raw {
		orgInfo, ok := item.(map[string]any)
		if !ok {
			e.logger.Warn("skipping malformed organization claim",
				zap.Int64("user_id", userID))
			continue
		}

		o, err := e.Organization(ctx, userID, orgInfo)
		if err != nil {
			e.logger.Error("failed to reconcile organization",
				zap.Int64("user_id", userID),
				zap.Any("oid", orgInfo["oid"]),
				zap.Error(err))
			continue
		}
		processed = append(processed, *o)
	}

	e.logger.Info("organizations reconciled",
		zap.Int64("user_id", userID), zap.Int("count", len(processed)))
	return processed
}

// Groups ingests the access-group claims for one organization. Groups
// are create-only: an existing (organization, group) pair is left
// untouched. Missing oid or an unknown organization is not an error.
func (e *Engine) Groups(ctx context.Context, info map[string]any) error {
	oid := claimInt64(info, "oid")
	if oid == nil {
		e.logger.Warn("group claims carry no organization oid")
		return nil
	}

	org, err := e.orgs.GetByESIAOID(ctx, *oid)
	if err != nil {
		if gwerr.KindOf(err) == gwerr.KindNotFound {
			e.logger.Warn("organization unknown, skipping group ingestion",
				zap.Int64("esia_oid", *oid))
			return nil
		}
		return err
	}

	grps, _ := info["grps"].(map[string]any)
	elements, _ := grps["elements"].([]any)

	for _, el := range elements {
		groupURL, ok := el.(string)
		if !ok {
			continue
		}

		idx := strings.LastIndex(groupURL, groupURLSeparator)
		if idx < 0 {
			e.logger.Warn("group URL has unexpected shape", zap.String("url", groupURL))
			continue
		}
		groupID := groupURL[idx+len(groupURLSeparator):]

		if _, err := e.groups.GetByGroupID(ctx, org.ID, groupID); err == nil {
			continue
		} else if gwerr.KindOf(err) != gwerr.KindNotFound {
			e.logger.Error("failed to look up group",
				zap.Int64("organization_id", org.ID),
				zap.String("group_id", groupID),
				zap.Error(err))
			continue
		}

		if _, err := e.groups.Create(ctx, models.OrganizationGroup{
			OrganizationID: org.ID,
			GroupID:        groupID,
			IsSystem:       true,
			ESIAURL:        &groupURL,
		}); err != nil {
			e.logger.Error("failed to create group",
				zap.Int64("organization_id", org.ID),
				zap.String("group_id", groupID),
				zap.Error(err))
			continue
		}

		e.logger.Debug("group created",
			zap.Int64("organization_id", org.ID),
			zap.String("group_id", groupID))
	}

	return nil
}
