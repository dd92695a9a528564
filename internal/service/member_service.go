package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/tao2825/library-borrow-system/internal/model"
	"github.com/tao2825/library-borrow-system/internal/repository"
	"github.com/tao2825/library-borrow-system/pkg/validator"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type MemberService interface {
	CreateMember(ctx context.Context, req *MemberRequest, actor string) (*model.Member, error)
	UpdateMember(ctx context.Context, id uint, req *MemberRequest, actor string) (*model.Member, error)
	GetMembers(ctx context.Context, activeOnly bool) ([]model.Member, error)
	GetMember(ctx context.Context, id uint) (*model.Member, error)
	DeleteMember(ctx context.Context, id uint, actor string) error
}

type MemberRequest struct {
	MemberCode string `json:"member_code" validate:"required,max=64"`
	Name       string `json:"name" validate:"required,max=255"`
	Gender     string `json:"gender" validate:"max=16"`
	Email      string `json:"email" validate:"max=255"`
	Phone      string `json:"phone" validate:"max=32"`
	IsActive   *bool  `json:"is_active"`
}

type memberService struct {
	db         *gorm.DB
	memberRepo repository.MemberRepository
	borrowRepo repository.BorrowRepository
	logger     *slog.Logger
}

func NewMemberService(db *gorm.DB, mRepo repository.MemberRepository, brRepo repository.BorrowRepository, logger *slog.Logger) MemberService {
	return &memberService{
		db:         db,
		memberRepo: mRepo,
		borrowRepo: brRepo,
		logger:     logger,
	}
}

func (r *MemberRequest) normalize() error {
	r.MemberCode = strings.TrimSpace(r.MemberCode)
	r.Name = strings.TrimSpace(r.Name)
	r.Gender = strings.TrimSpace(r.Gender)
	r.Email = strings.TrimSpace(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)

	var msgs []string
	if errs := validator.ValidateStruct(r); len(errs) > 0 {
		msgs = append(msgs, validator.Messages(errs)...)
	}
	if r.Email != "" && !emailPattern.MatchString(r.Email) {
		msgs = append(msgs, "email format is invalid")
	}
	if len(msgs) > 0 {
		return invalid(msgs...)
	}
	return nil
}

// checkUnique rejects a code or email used by any other member. excludeID is the row being edited.
func (s *memberService) checkUnique(ctx context.Context, members repository.MemberRepository, req *MemberRequest, excludeID uint) error {
	taken, err := members.CodeTaken(ctx, req.MemberCode, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return ErrMemberCodeTaken
	}
	taken, err = members.EmailTaken(ctx, req.Email, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailTaken
	}
	return nil
}

func (s *memberService) CreateMember(ctx context.Context, req *MemberRequest, actor string) (*model.Member, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	member := &model.Member{IsActive: true}
	applyMember(member, req)
	member.CreatedBy = actor
	member.UpdatedBy = actor

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		members := s.memberRepo.WithTx(tx)
		if err := s.checkUnique(ctx, members, req, 0); err != nil {
			return err
		}
		return members.Create(ctx, member)
	})
	if err != nil {
		return nil, uniqueConflict(err)
	}
	s.logger.Info("member created", slog.Uint64("member_id", uint64(member.ID)), slog.String("by", actor))
	return member, nil
}

func (s *memberService) UpdateMember(ctx context.Context, id uint, req *MemberRequest, actor string) (*model.Member, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	var member *model.Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		members := s.memberRepo.WithTx(tx)
		var err error
		member, err = members.FindByID(ctx, id)
		if err != nil {
			return notFound(err, ErrMemberNotFound)
		}
		if err := s.checkUnique(ctx, members, req, id); err != nil {
			return err
		}
		applyMember(member, req)
		member.UpdatedBy = actor
		return members.Update(ctx, member)
	})
	if err != nil {
		return nil, uniqueConflict(err)
	}
	return member, nil
}

func (s *memberService) GetMembers(ctx context.Context, activeOnly bool) ([]model.Member, error) {
	if activeOnly {
		return s.memberRepo.FindActive(ctx)
	}
	return s.memberRepo.FindAll(ctx)
}

func (s *memberService) GetMember(ctx context.Context, id uint) (*model.Member, error) {
	member, err := s.memberRepo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrMemberNotFound)
	}
	return member, nil
}

// DeleteMember soft-deletes a member with no books on loan.
func (s *memberService) DeleteMember(ctx context.Context, id uint, actor string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		members := s.memberRepo.WithTx(tx)
		if _, err := members.LockByID(ctx, id); err != nil {
			return notFound(err, ErrMemberNotFound)
		}
		hasLoans, err := s.borrowRepo.WithTx(tx).MemberHasLoans(ctx, id)
		if err != nil {
			return err
		}
		if hasLoans {
			return ErrMemberHasLoans
		}
		return members.Delete(ctx, id, actor)
	})
	if err != nil {
		return err
	}
	s.logger.Info("member deleted", slog.Uint64("member_id", uint64(id)), slog.String("by", actor))
	return nil
}

func applyMember(m *model.Member, req *MemberRequest) {
	m.MemberCode = req.MemberCode
	m.Name = req.Name
	m.Gender = req.Gender
	m.Phone = req.Phone
	m.Email = nil
	if req.Email != "" {
		email := req.Email
		m.Email = &email
	}
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}
}

// uniqueConflict maps a unique-index race the pre-check missed onto a conflict.
func uniqueConflict(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}
