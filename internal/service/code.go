package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"strconv"
	"strings"

	"github.com/Djju69/KARMABOT1-sub001/internal/apperr"
	"github.com/Djju69/KARMABOT1-sub001/internal/config"
	"github.com/Djju69/KARMABOT1-sub001/internal/model"
	"github.com/Djju69/KARMABOT1-sub001/internal/repository"
)

type CodeRepo interface {
	GetReferralCode(ctx context.Context, accountID int64) (*model.ReferralCode, error)
	GetReferralCodeByCode(ctx context.Context, code string) (*model.ReferralCode, error)
	InsertReferralCode(ctx context.Context, rc *model.ReferralCode) error
	ReactivateReferralCode(ctx context.Context, accountID int64) (*model.ReferralCode, error)
}

// CodeService issues stable, globally unique referral codes: once generated,
// an account keeps its code forever.
type CodeService struct {
	repo CodeRepo
	cfg  config.LoyaltyConfig
}

func NewCodeService(repo CodeRepo, cfg config.LoyaltyConfig) *CodeService {
	return &CodeService{repo: repo, cfg: cfg}
}

// GenerateCode returns the account's code, creating it on first request.
// Candidates combine a deterministic base36 prefix of the account id with a
// random suffix; collisions on the global uniqueness constraint are retried
// a bounded number of times.
func (s *CodeService) GenerateCode(ctx context.Context, accountID int64) (*model.ReferralCode, error) {
	existing, err := s.repo.GetReferralCode(ctx, accountID)
	if err == nil {
		if existing.IsActive {
			return existing, nil
		}
		// A deactivated code still owns the account_id row, so issuing a
		// fresh one is impossible. Flip it back instead.
		reactivated, err := s.repo.ReactivateReferralCode(ctx, accountID)
		if err != nil {
			return nil, apperr.Wrap(err, "reactivate referral code")
		}
		return reactivated, nil
	}
	if !errors.Is(err, repository.ErrCodeNotFound) {
		return nil, apperr.Wrap(err, "get referral code")
	}

	for attempt := 0; attempt < s.cfg.CodeAttempts; attempt++ {
		candidate, err := codeCandidate(accountID)
		if err != nil {
			return nil, apperr.Wrap(err, "generate code candidate")
		}

		rc := &model.ReferralCode{AccountID: accountID, Code: candidate, IsActive: true}
		err = s.repo.InsertReferralCode(ctx, rc)
		if err == nil {
			return rc, nil
		}
		if !errors.Is(err, repository.ErrCodeTaken) {
			return nil, apperr.Wrap(err, "insert referral code")
		}

		// The collision may be our own account-id key: a concurrent call
		// already persisted a code for this account, so return it.
		if existing, getErr := s.repo.GetReferralCode(ctx, accountID); getErr == nil && existing.IsActive {
			return existing, nil
		}
	}

	return nil, apperr.Validationf("не удалось сгенерировать уникальный код, попробуйте позже")
}

// ResolveCode maps an active code back to its owning account.
func (s *CodeService) ResolveCode(ctx context.Context, code string) (int64, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return 0, apperr.Validationf("введите код")
	}

	rc, err := s.repo.GetReferralCodeByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return 0, apperr.NotFoundf("код не найден")
		}
		return 0, apperr.Wrap(err, "resolve referral code")
	}
	return rc.AccountID, nil
}

// ReferralLink builds the bot deep link carrying the code.
func (s *CodeService) ReferralLink(ctx context.Context, accountID int64, botUsername string) (string, error) {
	rc, err := s.GenerateCode(ctx, accountID)
	if err != nil {
		return "", err
	}
	return "https://t.me/" + botUsername + "?start=ref_" + rc.Code, nil
}

const codeSuffixLen = 4

// codeCandidate builds "<base36 account id><random suffix>", lowercase.
func codeCandidate(accountID int64) (string, error) {
	suffix, err := randomSuffix(codeSuffixLen)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(accountID, 36) + suffix, nil
}

func randomSuffix(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	s := base32.StdEncoding.EncodeToString(raw)
	s = strings.TrimRight(s, "=")
	return strings.ToLower(s[:n]), nil
}
