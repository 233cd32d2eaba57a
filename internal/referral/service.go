package referral

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/contemplaapp/contempla-backend/internal/groups"
	"github.com/contemplaapp/contempla-backend/pkg/db/models"
	"github.com/contemplaapp/contempla-backend/pkg/enums"
	apperrors "github.com/contemplaapp/contempla-backend/pkg/errors"
	"github.com/contemplaapp/contempla-backend/pkg/logger"
	"github.com/contemplaapp/contempla-backend/pkg/referralcode"
)

// Resolution is the outcome of a referral-code lookup: either an existing
// group to join or a directive to open a new one.
type Resolution struct {
	CreateNew bool
	Group     *models.Group
}

// Service resolves referral codes and orchestrates enrollment.
type Service interface {
	// Resolve is a pure lookup. An empty code always directs to creating a
	// new group.
	Resolve(ctx context.Context, code string) (*Resolution, error)
	// Enroll handles a join request end to end: resolve the code, then
	// either open a new group or reserve the next position in the existing
	// one.
	Enroll(ctx context.Context, input EnrollInput) (*groups.JoinResult, error)
}

// EnrollInput is the inbound join request. ReferredBy is optional; when absent
// and an existing group is joined, the group's creator is recorded as the
// referrer.
type EnrollInput struct {
	PlanID       uuid.UUID
	UserID       uuid.UUID
	ReferralCode string
	ReferredBy   *uuid.UUID
}

type service struct {
	repo        groups.Repository
	coordinator groups.Service
	logg        *logger.Logger
}

// NewService wires the referral resolver on top of the group coordinator.
func NewService(repo groups.Repository, coordinator groups.Service, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("group repository required")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("group coordinator required")
	}
	return &service{repo: repo, coordinator: coordinator, logg: logg}, nil
}

func (s *service) Resolve(ctx context.Context, code string) (*Resolution, error) {
	normalized := referralcode.Normalize(code)
	if normalized == "" {
		return &Resolution{CreateNew: true}, nil
	}
	if !referralcode.Valid(normalized) {
		return nil, apperrors.New(apperrors.CodeValidation, "malformed referral code")
	}

	group, err := s.repo.FindByReferralCode(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "referral code does not match any group")
	}
	// Full groups stay resolvable: an expired reservation can free a slot and
	// the capacity check at join time has the final word. The caller is told
	// explicitly when a group stopped accepting members so the payer is never
	// silently redirected into a different group.
	if group.State != enums.GroupStateForming && group.State != enums.GroupStateFull {
		return nil, apperrors.New(apperrors.CodeStateConflict, "group is not accepting new members").
			WithDetails(map[string]string{"state": group.State.String()})
	}
	return &Resolution{Group: group}, nil
}

func (s *service) Enroll(ctx context.Context, input EnrollInput) (*groups.JoinResult, error) {
	if input.UserID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "user id is required")
	}

	resolution, err := s.Resolve(ctx, input.ReferralCode)
	if err != nil {
		return nil, err
	}

	if resolution.CreateNew {
		if input.PlanID == uuid.Nil {
			return nil, apperrors.New(apperrors.CodeValidation, "plan id is required to open a new group")
		}
		return s.coordinator.CreateGroup(ctx, groups.CreateGroupInput{
			PlanID:        input.PlanID,
			CreatorUserID: input.UserID,
		})
	}

	group := resolution.Group
	if input.PlanID != uuid.Nil && input.PlanID != group.PlanID {
		return nil, apperrors.New(apperrors.CodeValidation, "referral code belongs to a different plan")
	}

	referredBy := input.ReferredBy
	if referredBy == nil {
		creator, err := s.creatorOf(ctx, group.ID)
		if err != nil {
			return nil, err
		}
		if creator != nil {
			referredBy = &creator.ID
		}
	}

	return s.coordinator.JoinGroup(ctx, groups.JoinGroupInput{
		GroupID:    group.ID,
		UserID:     input.UserID,
		ReferredBy: referredBy,
	})
}

// creatorOf returns the group's position-1 participant, the default referrer
// for joins that arrive with only the group code.
func (s *service) creatorOf(ctx context.Context, groupID uuid.UUID) (*models.Participant, error) {
	members, err := s.repo.ListParticipants(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	return &members[0], nil
}
