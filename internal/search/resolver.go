// Package search resolves a public user identifier to a branch-scoped
// messaging link after phone verification.
package search

import (
	"errors"

	"support-api/internal/model"
	"support-api/pkg/config"
	"support-api/pkg/database"
	"support-api/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNotFound covers both an unknown identifier and a verified phone that does
// not match the account's stored phone. Callers must not be able to tell the
// two apart.
var ErrNotFound = errors.New("user not found")

// Result is the outcome of a successful resolution
type Result struct {
	UserID     string `json:"userId"`
	BranchName string `json:"branchName"`
	WaLink     string `json:"waLink"`
}

// Resolver maps public identifiers to messaging links, applying the
// force-override list on top of the role-based branch resolution.
type Resolver struct {
	defaultWaLink string
	forceWaLink   string
	forceUserIDs  map[string]struct{}
}

// NewResolver builds a resolver from search configuration
func NewResolver(cfg *config.SearchConfig) *Resolver {
	forced := make(map[string]struct{}, len(cfg.ForceWaLinkUserIDs))
	for _, id := range cfg.ForceWaLinkUserIDs {
		forced[id] = struct{}{}
	}
	return &Resolver{
		defaultWaLink: cfg.DefaultWaLink,
		forceWaLink:   cfg.ForceWaLinkURL,
		forceUserIDs:  forced,
	}
}

// Resolve looks up the account behind userID and returns its branch name and
// messaging link. When verifiedPhone is non-empty it must match the account's
// stored phone exactly after whitespace normalization; a mismatch is reported
// as ErrNotFound, the same as an unknown identifier.
func (r *Resolver) Resolve(userID, verifiedPhone string) (*Result, error) {
	db := database.GetDB()

	var user model.User
	if err := db.Preload("Branch").Where("user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// Deactivated accounts disappear from the directory, even for a caller
	// holding a still-valid verified-phone token
	if !user.IsActive {
		return nil, ErrNotFound
	}

	if verifiedPhone != "" {
		expected := model.NormalizePhone(verifiedPhone)
		stored := ""
		if user.Phone != nil {
			stored = model.NormalizePhone(*user.Phone)
		}
		if stored == "" || stored != expected {
			return nil, ErrNotFound
		}
	}

	waLink := ""
	branchName := ""

	switch user.Role {
	case model.RoleClient, model.RoleSub:
		// Snapshot first, live branch as fallback
		waLink = user.BranchWaLink
		branchName = user.BranchName
		if user.Branch != nil {
			if waLink == "" {
				waLink = user.Branch.WaLink
			}
			if branchName == "" {
				branchName = user.Branch.BranchName
			}
		}
	case model.RoleRoot:
		branchName = "Root"
		if user.Branch != nil {
			waLink = user.Branch.WaLink
			branchName = user.Branch.BranchName
		} else {
			waLink = r.defaultWaLink
		}
	default:
		if user.Branch != nil {
			waLink = user.Branch.WaLink
			branchName = user.Branch.BranchName
		}
	}

	// Force-override is evaluated last so it always wins
	if _, forced := r.forceUserIDs[userID]; forced && r.forceWaLink != "" {
		waLink = r.forceWaLink
	}

	// Best-effort visit log; a logging failure must not fail the lookup
	if err := db.Create(&model.UserHitLog{UserID: userID, WaLink: waLink}).Error; err != nil {
		logger.GetLogger().Warn("Failed to record visit log",
			zap.String("user_id", userID),
			zap.Error(err))
	}

	return &Result{
		UserID:     user.UserID,
		BranchName: branchName,
		WaLink:     waLink,
	}, nil
}
